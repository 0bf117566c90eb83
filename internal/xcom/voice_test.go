package xcom

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceSendPostsTwiML(t *testing.T) {
	var gotForm map[string]string
	var gotAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":    r.PostFormValue("To"),
			"From":  r.PostFormValue("From"),
			"Twiml": r.PostFormValue("Twiml"),
		}
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "AC123" && pass == "secret"
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewVoiceSender(TwilioConfig{
		AccountSID:       "AC123",
		AuthToken:        "secret",
		DefaultFromPhone: "+15550001111",
	})
	require.NotNil(t, s)
	s.endpoint = srv.URL

	ok := s.Send("+15552223333", "", "position <risk> & danger")
	assert.True(t, ok)
	assert.True(t, gotAuth)
	assert.Equal(t, "+15552223333", gotForm["To"])
	assert.Equal(t, "+15550001111", gotForm["From"])
	assert.Equal(t, "<Response><Say>position &lt;risk&gt; &amp; danger</Say></Response>", gotForm["Twiml"])
}

func TestVoiceSendAPIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewVoiceSender(TwilioConfig{AccountSID: "AC123", AuthToken: "bad"})
	require.NotNil(t, s)
	s.endpoint = srv.URL

	assert.False(t, s.Send("+15552223333", "", "body"))
}

func TestVoiceSendNoDestination(t *testing.T) {
	s := NewVoiceSender(TwilioConfig{AccountSID: "AC123", AuthToken: "secret"})
	require.NotNil(t, s)
	assert.False(t, s.Send("", "", "body"))
}

func TestNewVoiceSenderUnconfigured(t *testing.T) {
	assert.Nil(t, NewVoiceSender(TwilioConfig{}))
	assert.Nil(t, NewVoiceSender(TwilioConfig{AccountSID: "AC123"}))
}
