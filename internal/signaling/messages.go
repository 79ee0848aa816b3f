package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/relay"
)

type MessageType string

const (
	MessageTypeConnectionSuccess MessageType = "connection_success"
	MessageTypeParticipantList   MessageType = "participant_list"
	MessageTypeUserJoined        MessageType = "user_joined"
	MessageTypeUserLeft          MessageType = "user_left"
	MessageTypeJoin              MessageType = "join"
	MessageTypeOffer             MessageType = "offer"
	MessageTypeAnswer            MessageType = "answer"
	MessageTypeICECandidate      MessageType = "ice_candidate"
	MessageTypeChatMessage       MessageType = "chat_message"
	MessageTypeRecording         MessageType = "recording"
	MessageTypeAuth              MessageType = "auth"
	MessageTypeError             MessageType = "error"
)

const (
	connectedMessage = "Connected!"
	unknownRecorder  = "Unknown"
)

// Inbound messages. Clients may include extra fields (room, from, ...); they
// are ignored and sender identity always comes from the session.

type envelope struct {
	Type MessageType `json:"type"`
}

type joinMessage struct {
	Username string `json:"username" validate:"max=64"`
}

// signalMessage is decoded in two steps: To first, so an unknown target is
// dropped before the payload is looked at.
type signalMessage struct {
	To        relay.ParticipantID `json:"to"`
	Offer     json.RawMessage     `json:"offer"`
	Answer    json.RawMessage     `json:"answer"`
	Candidate json.RawMessage     `json:"candidate"`
}

// message and status are relayed as the client sent them, null included.
type chatMessage struct {
	Message json.RawMessage `json:"message" validate:"required,max=16384"`
}

type recordingMessage struct {
	Status json.RawMessage `json:"status" validate:"required,max=256"`
}

// Outbound messages.

type connectionSuccessMessage struct {
	Type    MessageType         `json:"type"`
	UserID  relay.ParticipantID `json:"user_id"`
	Message string              `json:"message"`
}

type participantListMessage struct {
	Type         MessageType         `json:"type"`
	Participants []relay.Participant `json:"participants"`
}

type participantEventMessage struct {
	Type     MessageType         `json:"type"`
	UserID   relay.ParticipantID `json:"user_id"`
	Username string              `json:"username"`
}

type relayedSignalMessage struct {
	Type         MessageType         `json:"type"`
	Offer        json.RawMessage     `json:"offer,omitempty"`
	Answer       json.RawMessage     `json:"answer,omitempty"`
	Candidate    json.RawMessage     `json:"candidate,omitempty"`
	From         relay.ParticipantID `json:"from"`
	FromUsername string              `json:"from_username"`
}

type relayedChatMessage struct {
	Type         MessageType         `json:"type"`
	Message      json.RawMessage     `json:"message"`
	From         relay.ParticipantID `json:"from"`
	FromUsername string              `json:"from_username"`
}

type relayedRecordingMessage struct {
	Type   MessageType     `json:"type"`
	Status json.RawMessage `json:"status"`
	By     string          `json:"by"`
}

type errorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// MessageError marks an inbound message that could not be processed. The
// session reports it to the client and keeps running.
type MessageError struct {
	Type MessageType
	Err  error
}

func (e *MessageError) Error() string {
	if e.Type == "" {
		return "invalid message: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid %s message: %v", e.Type, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

func parseEnvelope(data []byte) (MessageType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", &MessageError{Err: err}
	}
	if env.Type == "" {
		return "", &MessageError{Err: errors.New("missing type")}
	}
	return env.Type, nil
}

// decodeBody decodes data into v and runs its validation tags.
func decodeBody(t MessageType, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &MessageError{Type: t, Err: err}
	}
	if err := validate.Struct(v); err != nil {
		return &MessageError{Type: t, Err: describeValidation(err)}
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("missing %s", field)
	case "max":
		return fmt.Errorf("%s too long (max %s)", field, fe.Param())
	default:
		return fmt.Errorf("invalid %s", field)
	}
}

// payload returns the type-specific body of a signal message. A missing
// field is an error; null and strings are forwarded as-is. Objects must
// decode as the matching pion type. The raw bytes are forwarded unchanged.
func (m signalMessage) payload(t MessageType) (json.RawMessage, error) {
	var raw json.RawMessage
	switch t {
	case MessageTypeOffer:
		raw = m.Offer
	case MessageTypeAnswer:
		raw = m.Answer
	case MessageTypeICECandidate:
		raw = m.Candidate
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &MessageError{Type: t, Err: fmt.Errorf("missing %s", payloadField(t))}
	}

	var err error
	switch trimmed[0] {
	case 'n':
		// null: end-of-candidates from onicecandidate, or a client reset.
	case '"':
		err = checkStringPayload(trimmed, t)
	case '{':
		if t == MessageTypeICECandidate {
			var init webrtc.ICECandidateInit
			if uerr := json.Unmarshal(trimmed, &init); uerr != nil {
				err = fmt.Errorf("candidate: %w", uerr)
			}
		} else {
			err = checkSessionDescription(trimmed, t)
		}
	default:
		err = fmt.Errorf("%s must be an object, a string or null", payloadField(t))
	}
	if err != nil {
		return nil, &MessageError{Type: t, Err: err}
	}
	return json.RawMessage(trimmed), nil
}

func payloadField(t MessageType) string {
	if t == MessageTypeICECandidate {
		return "candidate"
	}
	return string(t)
}

// checkStringPayload accepts a bare SDP (offer/answer) or candidate line.
func checkStringPayload(raw []byte, t MessageType) error {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", payloadField(t), err)
	}
	if t != MessageTypeICECandidate && strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s.sdp is empty", t)
	}
	return nil
}

// checkSessionDescription requires a non-empty sdp. type may be omitted, but
// when present it must match the message type.
func checkSessionDescription(raw []byte, t MessageType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	want := webrtc.SDPTypeOffer
	if t == MessageTypeAnswer {
		want = webrtc.SDPTypeAnswer
	}
	if desc.Type != webrtc.SDPType(0) && desc.Type != want {
		return fmt.Errorf("%s.type must be %q", t, want.String())
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return fmt.Errorf("%s.sdp is empty", t)
	}
	return nil
}

func encode(v any) []byte {
	// Outbound types hold strings and already-validated raw JSON only.
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("signaling: encode %T: %v", v, err))
	}
	return b
}

func participantListFrame(participants []relay.Participant) []byte {
	if participants == nil {
		participants = []relay.Participant{}
	}
	return encode(participantListMessage{Type: MessageTypeParticipantList, Participants: participants})
}

func errorFrame(message string) []byte {
	return encode(errorMessage{Type: MessageTypeError, Message: message})
}
