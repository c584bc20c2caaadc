package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.DecideTopicsActivity)
	w.RegisterActivity(a.CreateDocumentsActivity)
	w.RegisterActivity(a.MergeDocumentsActivity)
	w.RegisterActivity(a.WriteRunReportActivity)
}
