package repository

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/pkg/apierror"
)

func profileRows(id int64, sounding int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "project_id", "sounding_number", "location", "profile_date",
		"water_level", "total_depth", "description", "created_at", "updated_at"}).
		AddRow(id, int64(3), sounding, "abutment", "2024-01-15", 1.2, 6.0, "", fixedTime, fixedTime)
}

func blowRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "profile_id", "depth", "fill", "blows6", "blows12", "blows18", "observation"})
}

func expectProfileLock(mock pgxmock.PgxPoolIface, id int64, sounding int) {
	mock.ExpectBegin()
	mock.ExpectQuery("FROM profiles WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(profileRows(id, sounding))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(3), sounding, id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE profiles").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func expectProfileReread(mock pgxmock.PgxPoolIface, id int64, blows *pgxmock.Rows) {
	mock.ExpectQuery("FROM profiles WHERE id").WithArgs(id).WillReturnRows(profileRows(id, 1))
	mock.ExpectQuery("FROM blows").WithArgs([]int64{id}).WillReturnRows(blows)
}

func TestProfileCreateWritesBlowsAndDerivesN(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepository(mock)

	input := model.Profile{
		ProjectID:      3,
		SoundingNumber: 1,
		Location:       "abutment",
		ProfileDate:    "2024-01-15",
		WaterLevel:     1.2,
		TotalDepth:     6,
		Blows:          []model.Blow{{Depth: 1.5, Fill: "clay", Blows6: 3, Blows12: 5, Blows18: 7}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(3), 1, int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO profiles").
		WithArgs(int64(3), 1, "abutment", "2024-01-15", 1.2, 6.0, "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec("INSERT INTO blows").
		WithArgs(int64(9), 1.5, "clay", 3, 5, 7, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	expectProfileReread(mock, 9, blowRows().AddRow(int64(90), int64(9), 1.5, "clay", 3, 5, 7, ""))

	created, err := repo.Create(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, created.Blows, 1)
	assert.Equal(t, 12, created.Blows[0].N)
	assert.Equal(t, 12, created.Summary.MaxN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileUpdateConflictsWithAnotherSounding(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(9)).
		WillReturnRows(profileRows(9, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(3), 2, int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	sounding := 2
	patch := model.UpdateProfileRequest{SoundingNumber: &sounding}
	_, err := repo.Update(context.Background(), 9, patch.ReplacesBlows(), func(current model.Profile) (model.Profile, error) {
		return patch.Apply(current), nil
	})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, "CONFLICT"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileUpdateKeepingItsOwnSoundingNumber(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepository(mock)

	expectProfileLock(mock, 9, 1)
	mock.ExpectCommit()
	expectProfileReread(mock, 9, blowRows())

	sounding := 1
	patch := model.UpdateProfileRequest{SoundingNumber: &sounding}
	_, err := repo.Update(context.Background(), 9, patch.ReplacesBlows(), func(current model.Profile) (model.Profile, error) {
		return patch.Apply(current), nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileUpdateWithoutBlowsLeavesChildrenUntouched(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepository(mock)

	expectProfileLock(mock, 9, 1)
	mock.ExpectCommit()
	expectProfileReread(mock, 9, blowRows().AddRow(int64(90), int64(9), 1.5, "clay", 3, 5, 7, ""))

	location := "pier 2"
	patch := model.UpdateProfileRequest{Location: &location}
	updated, err := repo.Update(context.Background(), 9, patch.ReplacesBlows(), func(current model.Profile) (model.Profile, error) {
		return patch.Apply(current), nil
	})
	require.NoError(t, err)

	assert.Len(t, updated.Blows, 1)
	assert.NoError(t, mock.ExpectationsWereMet(), "no DELETE may run when blows are absent")
}

func TestProfileUpdateWithEmptyBlowsClearsChildren(t *testing.T) {
	mock := newMockPool(t)
	repo := NewProfileRepository(mock)

	expectProfileLock(mock, 9, 1)
	mock.ExpectExec("DELETE FROM blows").
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCommit()
	expectProfileReread(mock, 9, blowRows())

	empty := []model.BlowInput{}
	patch := model.UpdateProfileRequest{Blows: &empty}
	updated, err := repo.Update(context.Background(), 9, patch.ReplacesBlows(), func(current model.Profile) (model.Profile, error) {
		return patch.Apply(current), nil
	})
	require.NoError(t, err)

	assert.Empty(t, updated.Blows)
	assert.NotNil(t, updated.Blows)
	assert.Zero(t, updated.Summary.BlowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
