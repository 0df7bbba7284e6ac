package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentialTestEnv struct {
	svc     *CredentialService
	mock    pgxmock.PgxPoolIface
	orgID   uuid.UUID
	userID  uuid.UUID
	keyID   uuid.UUID
	masterK uuid.UUID
	dek     []byte
}

func setupCredentialService(t *testing.T) *credentialTestEnv {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	provider := &fakeMasterProvider{keyID: uuid.New()}
	db := &database.DB{Pool: mock}
	dataKeys := NewDataKeyService(db, provider)
	ciphers := NewCipherService(dataKeys, provider)

	dek := make([]byte, 32)
	for i := range dek {
		dek[i] = byte(i)
	}

	return &credentialTestEnv{
		svc:     NewCredentialService(db, ciphers),
		mock:    mock,
		orgID:   uuid.New(),
		userID:  uuid.New(),
		keyID:   uuid.New(),
		masterK: provider.keyID,
		dek:     dek,
	}
}

// expectDataKeyLookup queues the scope's wrapped-DEK read. The wrapped blob
// is rebuilt per call because the service zeroes unwrapped key bytes, which
// alias the row value handed back by the mock.
func (e *credentialTestEnv) expectDataKeyLookup(t *testing.T) {
	t.Helper()
	now := time.Now()
	wrapped := append([]byte("wrapped:"), e.dek...)
	rows := pgxmock.NewRows(dataKeyColumns()).
		AddRow(e.keyID, e.orgID, e.userID, e.masterK, wrapped, now, now)
	e.mock.ExpectQuery(`FROM credential_data_keys\s+WHERE org_id`).
		WithArgs(e.orgID, e.userID).
		WillReturnRows(rows)
}

func (e *credentialTestEnv) encrypt(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	pair, err := NewCipherPair(e.dek)
	require.NoError(t, err)
	ciphertext, err := pair.Encrypt(plaintext)
	require.NoError(t, err)
	return ciphertext
}

func credentialColumns() []string {
	return []string{"id", "type", "encrypted_label", "encrypted_data", "user_id", "org_id", "created_at", "updated_at"}
}

func TestCredentialService_Create(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()
	now := time.Now()
	label := "Email"

	env.expectDataKeyLookup(t)

	rows := pgxmock.NewRows([]string{"id", "user_id", "org_id", "created_at", "updated_at"}).
		AddRow(credID, env.userID, env.orgID, now, now)
	env.mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(models.CredentialTypeWebLogin, pgxmock.AnyArg(), pgxmock.AnyArg(), env.userID, env.orgID).
		WillReturnRows(rows)

	cred, err := env.svc.Create(ctx, env.orgID, env.userID, models.CredentialTypeWebLogin,
		json.RawMessage(`{"username": "alice", "password": "p@ss"}`), &label)

	require.NoError(t, err)
	assert.Equal(t, credID, cred.ID)
	assert.Equal(t, models.CredentialTypeWebLogin, cred.Type)
	require.NotNil(t, cred.Label)
	assert.Equal(t, "Email", *cred.Label)
	assert.JSONEq(t, `{"username": "alice", "password": "p@ss"}`, string(cred.Data))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Create_StripsNullFields(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	now := time.Now()

	env.expectDataKeyLookup(t)

	rows := pgxmock.NewRows([]string{"id", "user_id", "org_id", "created_at", "updated_at"}).
		AddRow(uuid.New(), env.userID, env.orgID, now, now)
	env.mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(models.CredentialTypeSecureNote, pgxmock.AnyArg(), pgxmock.AnyArg(), env.userID, env.orgID).
		WillReturnRows(rows)

	cred, err := env.svc.Create(ctx, env.orgID, env.userID, models.CredentialTypeSecureNote,
		json.RawMessage(`{"content": null}`), nil)

	require.NoError(t, err)
	assert.Nil(t, cred.Label)
	assert.JSONEq(t, `{}`, string(cred.Data))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Create_InvalidPayload(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.orgID, env.userID, models.CredentialTypeWebLogin,
		json.RawMessage(`{"cardNumber": "4111"}`), nil)

	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Create_UnknownType(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.orgID, env.userID, models.CredentialType("ssh-key"),
		json.RawMessage(`{}`), nil)

	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Update_MergesFields(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()
	now := time.Now()

	existing := pgxmock.NewRows(credentialColumns()).
		AddRow(credID, models.CredentialTypeWebLogin, nil,
			env.encrypt(t, []byte(`{"username":"alice","password":"p@ss"}`)),
			env.userID, env.orgID, now, now)
	env.mock.ExpectQuery(`FROM credentials\s+WHERE id`).
		WithArgs(credID).
		WillReturnRows(existing)

	env.expectDataKeyLookup(t)

	env.mock.ExpectQuery(`UPDATE credentials`).
		WithArgs(pgxmock.AnyArg(), credID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	cred, err := env.svc.Update(ctx, credID, models.CredentialTypeWebLogin,
		json.RawMessage(`{"password": "newpass"}`), nil, false)

	require.NoError(t, err)
	assert.JSONEq(t, `{"username": "alice", "password": "newpass"}`, string(cred.Data))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Update_ClearsLabelOnExplicitNull(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()
	now := time.Now()

	existing := pgxmock.NewRows(credentialColumns()).
		AddRow(credID, models.CredentialTypeSecureNote,
			env.encrypt(t, []byte("Old label")),
			env.encrypt(t, []byte(`{"content":"note"}`)),
			env.userID, env.orgID, now, now)
	env.mock.ExpectQuery(`FROM credentials\s+WHERE id`).
		WithArgs(credID).
		WillReturnRows(existing)

	env.expectDataKeyLookup(t)

	env.mock.ExpectQuery(`UPDATE credentials`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), credID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	cred, err := env.svc.Update(ctx, credID, models.CredentialTypeSecureNote,
		json.RawMessage(`{}`), nil, true)

	require.NoError(t, err)
	assert.Nil(t, cred.Label)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Update_NotFound(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()

	env.mock.ExpectQuery(`FROM credentials\s+WHERE id`).
		WithArgs(credID).
		WillReturnError(pgx.ErrNoRows)

	_, err := env.svc.Update(ctx, credID, models.CredentialTypeWebLogin,
		json.RawMessage(`{"username": "x"}`), nil, false)

	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Update_TypeMismatch(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()
	now := time.Now()

	existing := pgxmock.NewRows(credentialColumns()).
		AddRow(credID, models.CredentialTypeCreditCard, nil,
			env.encrypt(t, []byte(`{"cardNumber":"4111111111111111"}`)),
			env.userID, env.orgID, now, now)
	env.mock.ExpectQuery(`FROM credentials\s+WHERE id`).
		WithArgs(credID).
		WillReturnRows(existing)

	_, err := env.svc.Update(ctx, credID, models.CredentialTypeSecureNote,
		json.RawMessage(`{"content": "x"}`), nil, false)

	assert.ErrorIs(t, err, ErrCredentialTypeMismatch)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_List(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	newer := uuid.New()
	older := uuid.New()
	now := time.Now()
	label := env.encrypt(t, []byte("Email"))

	rows := pgxmock.NewRows(credentialColumns()).
		AddRow(newer, models.CredentialTypeWebLogin, label,
			env.encrypt(t, []byte(`{"username":"alice"}`)),
			env.userID, env.orgID, now, now).
		AddRow(older, models.CredentialTypeSecureNote, nil,
			env.encrypt(t, []byte(`{"content":"note"}`)),
			env.userID, env.orgID, now.Add(-time.Hour), now.Add(-time.Hour))
	env.mock.ExpectQuery(`FROM credentials\s+WHERE org_id`).
		WithArgs(env.orgID, env.userID).
		WillReturnRows(rows)

	env.expectDataKeyLookup(t)

	creds, err := env.svc.List(ctx, env.orgID, env.userID)

	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, newer, creds[0].ID)
	assert.Equal(t, older, creds[1].ID)
	require.NotNil(t, creds[0].Label)
	assert.Equal(t, "Email", *creds[0].Label)
	assert.Nil(t, creds[1].Label)
	assert.JSONEq(t, `{"username": "alice"}`, string(creds[0].Data))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_List_SkipsUndecryptableRecord(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	good := uuid.New()
	bad := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows(credentialColumns()).
		AddRow(bad, models.CredentialTypeWebLogin, nil,
			[]byte("garbage ciphertext from another key"),
			env.userID, env.orgID, now, now).
		AddRow(good, models.CredentialTypeSecureNote, nil,
			env.encrypt(t, []byte(`{"content":"still readable"}`)),
			env.userID, env.orgID, now.Add(-time.Minute), now.Add(-time.Minute))
	env.mock.ExpectQuery(`FROM credentials\s+WHERE org_id`).
		WithArgs(env.orgID, env.userID).
		WillReturnRows(rows)

	env.expectDataKeyLookup(t)

	creds, err := env.svc.List(ctx, env.orgID, env.userID)

	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, good, creds[0].ID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_List_Empty(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()

	env.mock.ExpectQuery(`FROM credentials\s+WHERE org_id`).
		WithArgs(env.orgID, env.userID).
		WillReturnRows(pgxmock.NewRows(credentialColumns()))

	creds, err := env.svc.List(ctx, env.orgID, env.userID)

	require.NoError(t, err)
	assert.Empty(t, creds)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Delete(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()

	env.mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs(credID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := env.svc.Delete(ctx, credID)

	require.NoError(t, err)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCredentialService_Delete_NotFound(t *testing.T) {
	env := setupCredentialService(t)
	ctx := context.Background()
	credID := uuid.New()

	env.mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs(credID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := env.svc.Delete(ctx, credID)

	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}
