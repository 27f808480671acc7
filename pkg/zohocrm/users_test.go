package zohocrm_test

import (
	"context"
	"net/http"
	"testing"

	httpclient "github.com/natserract/zcrm/pkg/http"
	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersBody = `{"users":[
	{"id":"10","full_name":"Ada Lovelace","email":"ada@example.com","status":"active"},
	{"id":"11","full_name":"Old Timer","email":"old@example.com","status":"disabled"}
]}`

func usersHandler(c call) *httpclient.Response {
	if c.Path == "users" && c.Query.Get("type") == zohocrm.UserTypeAll {
		return respond(http.StatusOK, usersBody)
	}
	return nil
}

func allUsersCalls(s *stubSender) int {
	n := 0
	for _, c := range s.find(http.MethodGet, "users") {
		if c.Query.Get("type") == zohocrm.UserTypeAll {
			n++
		}
	}
	return n
}

func TestClient_GetUsers(t *testing.T) {
	t.Parallel()

	client, sender, _ := newTestClient(t, usersHandler)

	users, err := client.GetUsers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ada Lovelace", users[0].FullName)
	assert.True(t, users[0].Active())
	assert.False(t, users[1].Active())

	_, err = client.GetUsers(context.Background(), zohocrm.UserTypeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, allUsersCalls(sender))

	client.InvalidateUserCache()
	_, err = client.GetUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, allUsersCalls(sender))
}

func TestClient_FindUserByName(t *testing.T) {
	t.Parallel()

	client, sender, _ := newTestClient(t, usersHandler)

	tests := []struct {
		name     string
		fullName string
		wantName string
		wantID   string
	}{
		{name: "active user", fullName: "  Ada Lovelace ", wantName: "Ada Lovelace", wantID: "10"},
		{name: "inactive user falls back", fullName: "Old Timer", wantName: "Default Owner", wantID: "999"},
		{name: "unknown user falls back", fullName: "Nobody", wantName: "Default Owner", wantID: "999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, id, err := client.FindUserByName(context.Background(), tt.fullName)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantID, id)
		})
	}

	assert.Equal(t, 1, allUsersCalls(sender))
}
