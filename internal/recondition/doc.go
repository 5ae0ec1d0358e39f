// Package recondition rewrites a 3-D tomography array as a chunked HDF5
// dataset, one chunk of slices at a time, under a transform and a
// compression policy.
//
// A run is planned against the source before the output file is created:
// shape, element type, chunk shape and filter pipeline are all fixed by
// MakePlan. Run then reads each unit of Step slices, transforms it, pads
// the last unit with zero slices and writes it as one chunk. With
// Similarity set, every unit is decoded again and scored plane by plane
// with SSIM; the score is reported and never changes what is written.
package recondition
