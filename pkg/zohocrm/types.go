package zohocrm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one CRM entity as a field name to value mapping.
type Record map[string]any

// ID returns the remote identifier, or "" for an unsaved record.
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// clone returns a shallow copy so callers' payloads are not mutated.
func (r Record) clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Payload is the body of a create or update call. A nil Trigger is sent as
// an empty list, which suppresses workflow rules, approvals and blueprints.
type Payload struct {
	Data    []Record `json:"data"`
	Trigger []string `json:"trigger"`
}

// NewPayload wraps records in a Payload.
func NewPayload(records ...Record) *Payload {
	return &Payload{Data: records}
}

func (p *Payload) withDefaults() *Payload {
	out := &Payload{Data: p.Data, Trigger: p.Trigger}
	if out.Trigger == nil {
		out.Trigger = []string{}
	}
	return out
}

// Page is one round-trip of the query engine.
type Page struct {
	Number      int
	Records     []Record
	MoreRecords bool
}

// Token is the bearer credential returned by the accounts server.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	APIDomain   string `json:"api_domain,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

func parseToken(data []byte) (*Token, error) {
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token has no access_token field")
	}
	return &token, nil
}

// User is a CRM user as returned by the users endpoint.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Status   string `json:"status"`
}

// Active reports whether the user can own records.
func (u User) Active() bool {
	return strings.EqualFold(u.Status, "active")
}

type usersResponse struct {
	Users []User `json:"users"`
}

// Mutation actions.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// MutationResult is the outcome of create, update, delete or upsert. OK is
// false when the CRM rejected the request; Raw then holds the error body.
type MutationResult struct {
	OK         bool
	Action     string
	StatusCode int
	Records    []Record
	Raw        []byte
}

// Record returns the first persisted record, or nil.
func (m *MutationResult) Record() Record {
	if m == nil || len(m.Records) == 0 {
		return nil
	}
	return m.Records[0]
}

// RecordDetail is one per-record entry of a mutation response. A 202 reply
// signals that at least one entry has Status "error".
type RecordDetail struct {
	Code    string         `json:"code"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// ID returns details.id, present on successful entries.
func (d RecordDetail) ID() string {
	return Record(d.Details).ID()
}

// Details parses the per-record entries from the raw response body.
func (m *MutationResult) Details() ([]RecordDetail, error) {
	return parseRecordDetails(m.Raw)
}

func parseRecordDetails(raw []byte) ([]RecordDetail, error) {
	var body struct {
		Data []RecordDetail `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, protocolError("unreadable mutation response: %v", err)
	}
	return body.Data, nil
}

// APITime handles the CRM's date formats. Timestamps carry an offset
// ("2019-05-13T10:03:55+10:00"); some fields have no zone at all.
type APITime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler for APITime
func (t *APITime) UnmarshalJSON(data []byte) error {
	var timeStr string
	if err := json.Unmarshal(data, &timeStr); err != nil {
		return err
	}

	if timeStr == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := ParseTime(timeStr)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler for APITime
func (t APITime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatTime(t.Time))
}
