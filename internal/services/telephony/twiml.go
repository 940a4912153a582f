package telephony

import "github.com/twilio/twilio-go/twiml"

// Fallback messages spoken before hangup. Plain-language only; raw
// provider or storage errors never reach a caller.
const (
	msgBusy              = "The advisor you are trying to reach is currently unavailable. Please try again later."
	msgInsufficientFunds = "Your balance is too low to start this consultation. Please top up your wallet and try again."
	msgGenericError      = "We are unable to connect your call right now. Please try again later."
)

// connectDocument greets the caller and dials the masked number with the
// platform's caller id, recording from answer.
func connectDocument(greeting, maskedNumber, callerID string) (string, error) {
	say := &twiml.VoiceSay{Message: greeting}
	dial := &twiml.VoiceDial{
		CallerId: callerID,
		Record:   "record-from-answer",
	}
	dial.InnerElements = []twiml.Element{
		&twiml.VoiceNumber{PhoneNumber: maskedNumber},
	}
	return twiml.Voice([]twiml.Element{say, dial})
}

// hangupDocument speaks a notice and hangs up.
func hangupDocument(message string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
}
