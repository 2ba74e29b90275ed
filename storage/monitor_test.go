package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ruteri/storage-router/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitor_RunOnceRestoresProviders(t *testing.T) {
	d := &MockDriver{}
	d.On("Health", mock.Anything).Return(interfaces.Healthy())

	reg := NewRegistry(fakeFactory{"a": d}, testLogger)
	require.NoError(t, reg.RegisterPools([]interfaces.StoragePoolConfig{poolConfig("p", "a")}))

	pool, err := reg.GetPool("p")
	require.NoError(t, err)
	pool.providers[0].healthy.Store(false)
	pool.providers[0].errorCount.Store(3)

	m, err := NewHealthMonitor(reg, "", time.Second, testLogger)
	require.NoError(t, err)
	m.RunOnce(context.Background())

	info := pool.Info().Providers[0]
	assert.True(t, info.Healthy)
	assert.Equal(t, 0, info.ErrorCount)
}

func TestHealthMonitor_Schedule(t *testing.T) {
	probed := make(chan struct{}, 1)
	d := &MockDriver{}
	d.On("Health", mock.Anything).Return(interfaces.Healthy()).Run(func(mock.Arguments) {
		select {
		case probed <- struct{}{}:
		default:
		}
	})

	reg := NewRegistry(fakeFactory{"a": d}, testLogger)
	require.NoError(t, reg.RegisterPools([]interfaces.StoragePoolConfig{poolConfig("p", "a")}))

	m, err := NewHealthMonitor(reg, "@every 1s", 0, testLogger)
	require.NoError(t, err)
	m.Start()
	defer m.Stop(context.Background())

	select {
	case <-probed:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled health check did not run")
	}
}

func TestHealthMonitor_InvalidSchedule(t *testing.T) {
	_, err := NewHealthMonitor(NewRegistry(fakeFactory{}, testLogger), "every now and then", 0, testLogger)
	assert.Error(t, err)
}
