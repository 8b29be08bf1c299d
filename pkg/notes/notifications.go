package notes

// TestSuccessfulNotification is published, retained, by a peer that completed its part of a test.
type TestSuccessfulNotification struct {
	Header
	Origin
	Test    Test
	Message string
}

func NewTestSuccessfulNotification(origin Origin, test Test, message string) *TestSuccessfulNotification {
	return &TestSuccessfulNotification{
		Header:  newHeader(NotificationType, CmdNotifySuccess),
		Origin:  origin,
		Test:    test,
		Message: message,
	}
}

// TestFailedNotification is published, retained, by a peer whose part of a test failed.
type TestFailedNotification struct {
	Header
	Origin
	Test    Test
	Message string
}

func NewTestFailedNotification(origin Origin, test Test, message string) *TestFailedNotification {
	return &TestFailedNotification{
		Header:  newHeader(NotificationType, CmdNotifyFail),
		Origin:  origin,
		Test:    test,
		Message: message,
	}
}

// AbnormalDisconnectNotification is the last will of a peer that lost its broker connection.
type AbnormalDisconnectNotification struct {
	Header
	Origin
	Message string
}

func NewAbnormalDisconnectNotification(origin Origin, message string) *AbnormalDisconnectNotification {
	return &AbnormalDisconnectNotification{
		Header:  newHeader(NotificationType, CmdAbnormalDisconnect),
		Origin:  origin,
		Message: message,
	}
}

type DrainCompleteNotification struct {
	Header
	Origin
	Successful bool
	Message    string
}

func NewDrainCompleteNotification(origin Origin, successful bool, message string) *DrainCompleteNotification {
	return &DrainCompleteNotification{
		Header:     newHeader(NotificationType, CmdNotifyDrainComplete),
		Origin:     origin,
		Successful: successful,
		Message:    message,
	}
}

// IsOutcome reports whether n tells the outcome of a test on a peer. Outcome notes are published retained.
func IsOutcome(n Note) bool {
	switch n.(type) {
	case *TestSuccessfulNotification, *TestFailedNotification:
		return true
	}
	return false
}
