package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// fakeRow feeds fixed values into Scan the way pgx does for a single row.
type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case **uuid.UUID:
			*p, _ = r.values[i].(*uuid.UUID)
		case *int:
			*p = r.values[i].(int)
		case *float64:
			*p = r.values[i].(float64)
		case *string:
			*p = r.values[i].(string)
		case **string:
			*p, _ = r.values[i].(*string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			*p, _ = r.values[i].(*time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestScanInterview_DecodesJSONColumns(t *testing.T) {
	now := time.Now()
	q := "q1"
	row := fakeRow{values: []interface{}{
		uuid.New(), uuid.New(), 2, "VOICE", "IN_PROGRESS",
		mustJSON(t, []types.Question{{QuestionID: "q1", QuestionText: "Why?", Order: 1}}),
		[]byte(`[]`),
		mustJSON(t, []types.TranscriptTurn{{Role: types.RoleUser, Content: "Because.", QuestionID: &q}}),
		now, (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), (*uuid.UUID)(nil), now,
	}}

	iv, err := scanInterview(row)
	require.NoError(t, err)
	assert.Equal(t, types.ModeVoice, iv.Mode)
	assert.Equal(t, types.StatusInProgress, iv.Status)
	require.Len(t, iv.Questions, 1)
	assert.Equal(t, "Why?", iv.Questions[0].QuestionText)
	require.Len(t, iv.Transcript, 1)
	assert.Equal(t, "q1", *iv.Transcript[0].QuestionID)
	assert.Empty(t, iv.Answers)
}

func TestScanInterview_BadJSON(t *testing.T) {
	now := time.Now()
	row := fakeRow{values: []interface{}{
		uuid.New(), uuid.New(), 1, "TEXT", "IN_PROGRESS",
		[]byte(`{not json`), []byte(`[]`), []byte(`[]`),
		now, (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), (*uuid.UUID)(nil), now,
	}}

	_, err := scanInterview(row)
	assert.ErrorContains(t, err, "failed to decode questions")
}

func TestScanReview_SetsStatus(t *testing.T) {
	now := time.Now()
	score := 4.0
	row := fakeRow{values: []interface{}{
		uuid.New(), uuid.New(), uuid.New(), uuid.New(), 2,
		mustJSON(t, []types.QuestionReview{{QuestionID: "q1", Score: &score}}),
		4.0, "SUBMITTED", now, &now, now,
	}}

	r, err := scanReview(row)
	require.NoError(t, err)
	assert.Equal(t, types.ReviewSubmitted, r.Status)
	assert.Equal(t, 2, r.AttemptNumber)
	require.Len(t, r.QuestionReviews, 1)
	assert.Equal(t, 4.0, *r.QuestionReviews[0].Score)
}

func TestScanFeedback_PropagatesScanError(t *testing.T) {
	_, err := scanFeedback(fakeRow{err: errors.New("boom")})
	assert.EqualError(t, err, "boom")
}

func TestNonNilStrings(t *testing.T) {
	assert.Equal(t, []string{}, nonNilStrings(nil))
	assert.Equal(t, []string{"a"}, nonNilStrings([]string{"a"}))
}

func TestMarshalStringList(t *testing.T) {
	b, err := marshalStringList("strengths", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	b, err = marshalStringList("strengths", []string{"clear", "calm"})
	require.NoError(t, err)
	assert.JSONEq(t, `["clear","calm"]`, string(b))
}
