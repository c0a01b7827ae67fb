package config

// EventKeyStruct names session event types. Terminal ones are also published
// to the rewards/notification topic.
type EventKeyStruct struct {
	SessionStarted     string
	SessionPaused      string
	SessionResumed     string
	ProctoringRecorded string
	SessionCompleted   string
	SessionExpired     string
	SessionAbandoned   string
}

var EventKey = &EventKeyStruct{
	SessionStarted:     "exam.session.started",
	SessionPaused:      "exam.session.paused",
	SessionResumed:     "exam.session.resumed",
	ProctoringRecorded: "exam.session.proctoring",
	SessionCompleted:   "exam.session.completed",
	SessionExpired:     "exam.session.expired",
	SessionAbandoned:   "exam.session.abandoned",
}
