// Package workdir allocates the scoped directories a pipeline run writes
// into and reclaims the ones left behind.
//
// Each run owns one directory under the configured work root, held by an
// advisory lock for as long as the run is alive. Release removes the whole
// tree. The janitor only touches directories whose lock it can take, so it
// never races an active run.
package workdir
