package harvestlinksdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSSDReply(t *testing.T) {
	r, err := ParseUSSDReply("CON Welcome\n1. Check loss risk")
	require.NoError(t, err)
	assert.False(t, r.Final)
	assert.Equal(t, "Welcome\n1. Check loss risk", r.Message)

	r, err = ParseUSSDReply("END Thank you")
	require.NoError(t, err)
	assert.True(t, r.Final)

	_, err = ParseUSSDReply("oops")
	require.Error(t, err)
}

func TestDialSendsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/ussd", r.URL.Path)
		assert.Equal(t, "s1", r.PostFormValue("sessionId"))
		assert.Equal(t, "1*2", r.PostFormValue("text"))
		w.Write([]byte("CON Enter quantity of Rice"))
	}))
	defer srv.Close()

	reply, err := New(srv.URL).Dial(context.Background(), "s1", "+254700000000", "*123#", "1*2")
	require.NoError(t, err)
	assert.Equal(t, "Enter quantity of Rice", reply.Message)
}

func TestSendSMSDecodesTwiML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n" + `<Response><Message>LOSS RISK: LOW &amp; steady</Message></Response>`))
	}))
	defer srv.Close()

	msg, err := New(srv.URL).SendSMS(context.Background(), "+254700000000", "rice 10kg")
	require.NoError(t, err)
	assert.Equal(t, "LOSS RISK: LOW & steady", msg)
}

func TestAPIKeyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"unauthorized"}}`))
			return
		}
		assert.Equal(t, "/v0/buyers", r.URL.Path)
		assert.Equal(t, "maize", r.URL.Query().Get("crop"))
		json.NewEncoder(w).Encode(map[string]any{"items": []Buyer{{Name: "AgriCorp Kenya", Location: "Nairobi"}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Buyers(context.Background(), "maize")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	c.APIKey = "k"
	buyers, err := c.Buyers(context.Background(), "maize")
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, "AgriCorp Kenya", buyers[0].Name)
}
