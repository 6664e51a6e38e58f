package wire

import "encoding/json"

// Stable reply-message prefixes clients key off of (spec.md §6).
const (
	PrefixDuplicate    = "duplicate: "
	PrefixInvalid      = "invalid: "
	PrefixBlocked      = "blocked: "
	PrefixRestricted   = "restricted: "
	PrefixAuthRequired = "auth-required: "
	PrefixError        = "error: "

	MsgSuccessfullyAuthenticated = "successfully authenticated"
	MsgTooManyConcurrentReqs     = "too many concurrent REQs"
)

func encode(v ...interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// every argument here is a concrete, marshalable type under our
		// control; a failure means a programmer error, not bad input.
		panic(err)
	}
	return b
}

// Event encodes `["EVENT", subId, evt]`, a matching event pushed to a live
// or backfilling subscription.
func Event(subID string, evtJSON json.RawMessage) []byte {
	return encode("EVENT", subID, evtJSON)
}

// EOSE encodes `["EOSE", subId]`, signaling historical backfill completion.
func EOSE(subID string) []byte {
	return encode("EOSE", subID)
}

// OK encodes `["OK", idHex, ok, message]`, the response to EVENT or AUTH.
func OK(idHex string, ok bool, message string) []byte {
	return encode("OK", idHex, ok, message)
}

// Notice encodes `["NOTICE", message]`, a freeform human-readable message.
func Notice(message string) []byte {
	return encode("NOTICE", message)
}

// NoticeError encodes a NOTICE carrying the conventional "ERROR: " prefix
// used for malformed frames and subscription-cap rejections (spec.md §7).
func NoticeError(message string) []byte {
	return Notice("ERROR: " + message)
}

// AuthChallenge encodes `["AUTH", challenge]`, asking the client to
// authenticate.
func AuthChallenge(challenge string) []byte {
	return encode("AUTH", challenge)
}

// NegMsg encodes `["NEG-MSG", subId, payloadHex]`, one leg of a
// set-reconciliation exchange.
func NegMsg(subID, payloadHex string) []byte {
	return encode("NEG-MSG", subID, payloadHex)
}
