package tracker

import (
	"github.com/tunivo/jobsync/app/backend"
	"github.com/tunivo/jobsync/app/project"
)

// Merge combines fetched job status with the local record. Backend owns status, progress, message,
// plan, report and download url; everything else comes from the local record unchanged.
// resolve turns the backend download path into a full url.
func Merge(existing project.Project, latest backend.Job, resolve func(path string) string) project.Project {
	res := existing
	res.Status = latest.Status
	res.Progress = latest.Progress
	res.Message = latest.Message
	res.Plan = latest.Plan
	res.Report = latest.Report
	res.DownloadURL = nil
	if latest.DownloadURL != nil && *latest.DownloadURL != "" {
		u := resolve(*latest.DownloadURL)
		res.DownloadURL = &u
	}
	return res
}
