package config

type WorkerKeyStruct struct {
	BulkJobsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	BulkJobsQueue: "bulk_jobs_queue",
}
