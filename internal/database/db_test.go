package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}
	db, err := NewPostgresDB(dsn)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVerificationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.NewString()

	st, err := db.GetUserStatus(ctx, userID)
	require.NoError(t, err)
	assert.False(t, st.VerificationSubmitted)

	_, err = db.LatestVerification(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := &VerificationRecord{
		ID:                  uuid.NewString(),
		UserID:              userID,
		IdentityDocumentURL: "http://files/" + userID + "/verification/identity_1.jpg",
		AddressDocumentURL:  "http://files/" + userID + "/verification/address_2.jpg",
		SelfieImageURL:      "http://files/" + userID + "/verification/selfie_3.jpg",
		Status:              VerificationPending,
		SubmittedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.InsertVerification(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	latest, err := db.LatestVerification(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)
	assert.Equal(t, VerificationPending, latest.Status)

	require.NoError(t, db.SetVerificationSubmitted(ctx, userID, true))
	require.NoError(t, db.SetVerificationSubmitted(ctx, userID, true))
	st, err = db.GetUserStatus(ctx, userID)
	require.NoError(t, err)
	assert.True(t, st.VerificationSubmitted)
	assert.False(t, st.IsVerified)
}

func TestJobQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &VerificationRecord{
		ID:                  uuid.NewString(),
		UserID:              uuid.NewString(),
		IdentityDocumentURL: "http://files/a.jpg",
		AddressDocumentURL:  "http://files/b.jpg",
		SelfieImageURL:      "http://files/c.jpg",
		Status:              VerificationPending,
		SubmittedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.InsertVerification(ctx, rec))

	jobID, err := db.CreateProcessingJob(ctx, rec.ID)
	require.NoError(t, err)

	job, err := db.GetJobByVerificationID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, JobPending, job.Status)

	require.NoError(t, db.CompleteJob(ctx, jobID, []string{"a-thumb-small.jpg", "a-thumb-medium.jpg"}))
	job, err = db.GetJobByVerificationID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, []string{"a-thumb-small.jpg", "a-thumb-medium.jpg"}, job.Thumbnails)
	assert.NotNil(t, job.CompletedAt)
}

func TestEvidenceOwnership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := uuid.NewString()

	obj := &EvidenceObject{
		ID:          uuid.NewString(),
		UserID:      owner,
		StoredPath:  owner + "/verification/identity_1.jpg",
		Filename:    "id.jpg",
		ContentType: "image/jpeg",
		Size:        1024,
		UploadedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.SaveEvidence(ctx, obj))

	got, err := db.GetEvidence(ctx, obj.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, owner, got.UserID)

	assert.ErrorIs(t, db.DeleteEvidence(ctx, obj.StoredPath, uuid.NewString()), ErrNotFound)
	require.NoError(t, db.DeleteEvidence(ctx, obj.StoredPath, owner))
	_, err = db.GetEvidence(ctx, obj.StoredPath)
	assert.ErrorIs(t, err, ErrNotFound)
}
