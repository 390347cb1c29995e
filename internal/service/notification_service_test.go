package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

func TestRefreshBuildsLowCreditAlerts(t *testing.T) {
	students := newFakeStudentStore(
		&models.Student{ID: "s1", Name: "Ara", Frequency: models.FrequencyFlexible, RemainingCredits: 0, Active: true},
		&models.Student{ID: "s2", Name: "Bomi", Frequency: models.FrequencyFlexible, RemainingCredits: 2, Active: true},
		&models.Student{ID: "s3", Name: "Chul", Frequency: models.FrequencyFlexible, RemainingCredits: 9, Active: true},
		&models.Student{ID: "s4", Name: "Dain", Frequency: models.FrequencyFlexible, RemainingCredits: 0, Active: false},
	)
	svc := NewNotificationService(students, nil, zap.NewNop(), 2, time.Minute, 1)

	alerts, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "Ara", alerts[0].StudentName)
	assert.Equal(t, models.NotificationPackageEmpty, alerts[0].Type)
	assert.Equal(t, "Bomi", alerts[1].StudentName)
	assert.Equal(t, models.NotificationPackageExpiring, alerts[1].Type)
}

func TestListServesInMemorySnapshot(t *testing.T) {
	students := newFakeStudentStore(
		&models.Student{ID: "s1", Name: "Ara", Frequency: models.FrequencyFlexible, RemainingCredits: 1, Active: true},
	)
	svc := NewNotificationService(students, nil, zap.NewNop(), 2, time.Minute, 1)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	// Drop the student; List should still serve the snapshot.
	delete(students.students, "s1")
	alerts, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Ara", alerts[0].StudentName)
}

func TestListRecomputesOnColdStart(t *testing.T) {
	students := newFakeStudentStore(
		&models.Student{ID: "s1", Name: "Ara", Frequency: models.FrequencyFlexible, RemainingCredits: 0, Active: true},
	)
	svc := NewNotificationService(students, nil, zap.NewNop(), 2, time.Minute, 1)

	alerts, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.NotificationPackageEmpty, alerts[0].Type)
}
