package config

type WorkerKeyStruct struct {
	PersistProgressQueue string
	PersistScrubsQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProgressQueue: "persist_progress_queue",
	PersistScrubsQueue:   "persist_scrubs_queue",
}
