package config

type WorkerKeyStruct struct {
	ProctoringEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ProctoringEventsQueue: "proctoring_events_queue",
}
