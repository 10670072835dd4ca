package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// RecordedRequest is a request received by a fake provider.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	Body          json.RawMessage
}

// Field decodes one top-level field of the JSON body.
func (r RecordedRequest) Field(name string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &fields); err != nil {
		return nil
	}
	return fields[name]
}

type recorder struct {
	mu       sync.Mutex
	requests []RecordedRequest
}

func (rec *recorder) record(r *http.Request) RecordedRequest {
	body, _ := io.ReadAll(r.Body)
	req := RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	}
	rec.mu.Lock()
	rec.requests = append(rec.requests, req)
	rec.mu.Unlock()
	return req
}

// Requests returns the recorded requests to path, in arrival order. An empty
// path returns every request.
func (rec *recorder) Requests(path string) []RecordedRequest {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	var out []RecordedRequest
	for _, r := range rec.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// FakeSendPulse emulates the SendPulse token and WhatsApp endpoints.
// Contacts maps a phone to the raw JSON id the lookup returns; created
// contacts are added to it.
type FakeSendPulse struct {
	*recorder
	Server *httptest.Server

	mu       sync.Mutex
	Token    string
	Contacts map[string]string
	// NextID is the raw JSON id handed to the next created contact.
	NextID string
	// Status overrides the response status per path.
	Status map[string]int
}

// SendPulse endpoint paths.
const (
	PathToken        = "/oauth/access_token"
	PathGetByPhone   = "/whatsapp/contacts/getByPhone"
	PathContacts     = "/whatsapp/contacts"
	PathSetVariable  = "/whatsapp/contacts/setVariable"
	PathSendTemplate = "/whatsapp/contacts/sendTemplate"
	PathRunFlow      = "/whatsapp/flows/run"
)

// NewFakeSendPulse starts a fake SendPulse API closed at test cleanup.
func NewFakeSendPulse(t *testing.T) *FakeSendPulse {
	t.Helper()

	f := &FakeSendPulse{
		recorder: &recorder{},
		Token:    "fake-access-token",
		Contacts: map[string]string{},
		NextID:   "1",
		Status:   map[string]int{},
	}

	r := chi.NewRouter()
	r.Post(PathToken, f.handleToken)
	r.Get(PathGetByPhone, f.handleGetByPhone)
	r.Post(PathContacts, f.handleCreate)
	r.Post(PathSetVariable, f.handleOK)
	r.Post(PathSendTemplate, f.handleOK)
	r.Post(PathRunFlow, f.handleOK)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeSendPulse) URL() string {
	return f.Server.URL
}

// SetStatus forces the status code answered on path.
func (f *FakeSendPulse) SetStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Status[path] = status
}

func (f *FakeSendPulse) status(path string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Status[path]
	return s, ok
}

func (f *FakeSendPulse) authorized(w http.ResponseWriter, r RecordedRequest) bool {
	if r.Authorization != "Bearer "+f.Token {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_token"}`)
		return false
	}
	return true
}

func (f *FakeSendPulse) handleToken(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if s, ok := f.status(PathToken); ok && s != http.StatusOK {
		writeJSON(w, s, `{"error":"invalid_client"}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"access_token":"`+f.Token+`","token_type":"Bearer","expires_in":3600}`)
}

func (f *FakeSendPulse) handleGetByPhone(w http.ResponseWriter, r *http.Request) {
	req := f.record(r)
	if !f.authorized(w, req) {
		return
	}
	if s, ok := f.status(PathGetByPhone); ok {
		writeJSON(w, s, `{"success":false}`)
		return
	}

	f.mu.Lock()
	id, found := f.Contacts[req.Query.Get("phone")]
	f.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusBadRequest, `{"success":false,"errors":{"phone":"contact not found"}}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":`+id+`,"bot_id":"`+req.Query.Get("bot_id")+`"}}`)
}

func (f *FakeSendPulse) handleCreate(w http.ResponseWriter, r *http.Request) {
	req := f.record(r)
	if !f.authorized(w, req) {
		return
	}
	if s, ok := f.status(PathContacts); ok && s != http.StatusOK {
		writeJSON(w, s, `{"success":false}`)
		return
	}

	var phone string
	json.Unmarshal(req.Field("phone"), &phone)

	f.mu.Lock()
	id := f.NextID
	f.Contacts[phone] = id
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, `{"id":`+id+`,"phone":"`+phone+`"}`)
}

func (f *FakeSendPulse) handleOK(w http.ResponseWriter, r *http.Request) {
	req := f.record(r)
	if !f.authorized(w, req) {
		return
	}
	if s, ok := f.status(req.Path); ok && s != http.StatusOK {
		writeJSON(w, s, `{"success":false}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"success":true}`)
}

// FakeClinicorp emulates the Clinicorp payment listing.
type FakeClinicorp struct {
	*recorder
	Server *httptest.Server

	mu       sync.Mutex
	Payments string
	Status   int
}

// PathPaymentList is the Clinicorp payment listing path under the fake's root.
const PathPaymentList = "/rest/v1/payment/list"

// NewFakeClinicorp starts a fake Clinicorp API answering payments (a JSON
// array) to every listing. It is closed at test cleanup.
func NewFakeClinicorp(t *testing.T, payments string) *FakeClinicorp {
	t.Helper()

	f := &FakeClinicorp{
		recorder: &recorder{},
		Payments: payments,
		Status:   http.StatusOK,
	}

	r := chi.NewRouter()
	r.Get(PathPaymentList, func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		status, payments := f.Status, f.Payments
		f.mu.Unlock()
		writeJSON(w, status, payments)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL returns the API root to configure the billing client with.
func (f *FakeClinicorp) BaseURL() string {
	return f.Server.URL + strings.TrimSuffix(PathPaymentList, "/payment/list")
}
