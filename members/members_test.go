package members_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministerio/gestao-engine/generic"
	"github.com/ministerio/gestao-engine/members"
	"github.com/ministerio/gestao-engine/store/memory"
)

func TestService_Create(t *testing.T) {
	svc := members.NewService(memory.NewMembers(), nil)
	birth := time.Date(1990, time.May, 4, 0, 0, 0, 0, time.UTC)

	m, err := svc.Create(context.Background(), members.MemberSpec{
		Name:      "Maria das Dores",
		Email:     "maria@example.org",
		BirthDate: &birth,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.True(t, m.Active)
	got, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria das Dores", got.Name)
}

func TestService_Create_Validation(t *testing.T) {
	svc := members.NewService(memory.NewMembers(), nil)
	future := time.Now().AddDate(1, 0, 0)

	tests := []struct {
		name  string
		spec  members.MemberSpec
		field string
	}{
		{"missing name", members.MemberSpec{}, "name"},
		{"bad email", members.MemberSpec{Name: "João", Email: "joao"}, "email"},
		{"future birth date", members.MemberSpec{Name: "João", BirthDate: &future}, "birth_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.spec)

			var verr *generic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := members.NewService(memory.NewMembers(), nil)

	_, err := svc.Get(context.Background(), "missing")

	assert.True(t, generic.IsNotFound(err))
}

func TestService_PatientExists_FollowsActiveFlag(t *testing.T) {
	// GIVEN: an active member
	ctx := context.Background()
	svc := members.NewService(memory.NewMembers(), nil)
	m, err := svc.Create(ctx, members.MemberSpec{Name: "Ana"})
	require.NoError(t, err)

	ok, err := svc.PatientExists(ctx, string(m.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	// WHEN: the member is deactivated
	require.NoError(t, svc.SetActive(ctx, m.ID, false))

	// THEN: they can no longer book
	ok, err = svc.PatientExists(ctx, string(m.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.PatientExists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_List_SortedByName(t *testing.T) {
	ctx := context.Background()
	svc := members.NewService(memory.NewMembers(), nil)
	for _, name := range []string{"Pedro", "Ana", "Lucas"} {
		_, err := svc.Create(ctx, members.MemberSpec{Name: name})
		require.NoError(t, err)
	}

	ms, err := svc.List(ctx)

	require.NoError(t, err)
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"Ana", "Lucas", "Pedro"}, names)
}

func TestService_SetActive_Unknown(t *testing.T) {
	svc := members.NewService(memory.NewMembers(), nil)

	err := svc.SetActive(context.Background(), "missing", false)

	assert.ErrorIs(t, err, generic.ErrNotFound)
}
