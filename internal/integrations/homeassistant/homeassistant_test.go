package homeassistant

import (
	"errors"
	"sync"
	"testing"
	"time"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload interface{}
	retain  bool
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	fail      map[string]bool
	messages  []published
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, fail: map[string]bool{}}
}

func (f *fakeClient) PublishMessage(topic string, payload interface{}, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[topic] {
		return errors.New("broker rejected")
	}
	f.messages = append(f.messages, published{topic, payload, retain})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func (f *fakeClient) find(topic string) (published, bool) {
	for _, m := range f.snapshot() {
		if m.topic == topic {
			return m, true
		}
	}
	return published{}, false
}

func mqttConfig() config.MQTTConfig {
	return config.MQTTConfig{Topic: "attendance"}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "ana_maria", NormalizeID(" Ana Maria "))
	assert.Equal(t, "a_b_c_d", NormalizeID("a/b+c#d"))
	assert.Equal(t, "attendance/students/s_1/state", StudentStateTopic("attendance", "S-1"))
}

func TestRegisterStudentsPublishesSensors(t *testing.T) {
	client := newFakeClient()
	dm := NewDiscoveryManager(client, mqttConfig(), "test")

	err := dm.RegisterStudents([]models.Student{{ID: "s1", Name: "Ana"}, {ID: "s2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, dm.Registered())

	msg, ok := client.find("homeassistant/sensor/classroom_attendance/attendance_s1/config")
	require.True(t, ok)
	assert.True(t, msg.retain)
	cfg, ok := msg.payload.(SensorConfig)
	require.True(t, ok)
	assert.Equal(t, "Attendance Ana", cfg.Name)
	assert.Equal(t, "attendance/students/s1/state", cfg.StateTopic)
	assert.Equal(t, "attendance/status", cfg.AvailabilityTopic)
	assert.Equal(t, "{{ value_json.status }}", cfg.ValueTemplate)

	msg, ok = client.find("homeassistant/sensor/classroom_attendance/attendance_s2/config")
	require.True(t, ok)
	assert.Equal(t, "Attendance s2", msg.payload.(SensorConfig).Name)
}

func TestRegisterStudentsRemovesStaleSensors(t *testing.T) {
	client := newFakeClient()
	dm := NewDiscoveryManager(client, mqttConfig(), "test")

	require.NoError(t, dm.RegisterStudents([]models.Student{{ID: "s1"}, {ID: "s2"}}))
	require.NoError(t, dm.RegisterStudents([]models.Student{{ID: "s1"}}))
	assert.Equal(t, 1, dm.Registered())

	var removed bool
	for _, m := range client.snapshot() {
		if m.topic == "homeassistant/sensor/classroom_attendance/attendance_s2/config" && m.payload == "" {
			removed = true
		}
	}
	assert.True(t, removed)
}

func TestRegisterStudentsReportsFailures(t *testing.T) {
	client := newFakeClient()
	client.fail["homeassistant/sensor/classroom_attendance/attendance_s2/config"] = true
	dm := NewDiscoveryManager(client, mqttConfig(), "test")

	err := dm.RegisterStudents([]models.Student{{ID: "s1"}, {ID: "s2"}})
	assert.Error(t, err)
	assert.Equal(t, 1, dm.Registered())
}

func TestRegisterStudentsRequiresConnection(t *testing.T) {
	client := newFakeClient()
	client.connected = false
	dm := NewDiscoveryManager(client, mqttConfig(), "test")
	assert.Error(t, dm.RegisterStudents([]models.Student{{ID: "s1"}}))
}

func TestCustomDiscoveryPrefix(t *testing.T) {
	client := newFakeClient()
	cfg := mqttConfig()
	cfg.HomeAssistant.DiscoveryPrefix = "ha"
	dm := NewDiscoveryManager(client, cfg, "test")

	require.NoError(t, dm.RegisterStudents([]models.Student{{ID: "s1"}}))
	_, ok := client.find("ha/sensor/classroom_attendance/attendance_s1/config")
	assert.True(t, ok)

	require.NoError(t, dm.PublishAvailability(true))
	msg, ok := client.find("attendance/status")
	require.True(t, ok)
	assert.Equal(t, "online", msg.payload)
}

func TestPublisherEmitsStateAndLog(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "attendance", 16)
	p.Start()

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p.EmitLog("Room 1", []string{"a", "b"})
	p.EmitFrame("Room 1", []byte{1}, at)
	p.EmitEvent(attendance.Event{
		Kind:                attendance.EventAbsenceAlert,
		SourceID:            "Room 1",
		StudentID:           "s1",
		Status:              attendance.StatusAbsentAlert.String(),
		ConsecutiveAbsences: 2,
		At:                  at,
	})
	p.EmitEvent(attendance.Event{Kind: attendance.EventCycle, SourceID: "Room 1", Outcome: attendance.OutcomeNoMatch, At: at})

	require.Eventually(t, func() bool { return len(client.snapshot()) == 5 }, time.Second, 5*time.Millisecond)
	p.Stop()

	msg, _ := client.find("attendance/room_1/log")
	assert.Equal(t, "a\nb", msg.payload)

	msg, ok := client.find("attendance/students/s1/state")
	require.True(t, ok)
	assert.True(t, msg.retain)
	state := msg.payload.(StudentState)
	assert.True(t, state.Alert)
	assert.Equal(t, 2, state.ConsecutiveAbsences)

	msg, ok = client.find("attendance/room_1/cycle")
	require.True(t, ok)
	assert.Equal(t, "no_match", msg.payload.(CycleSummary).Outcome)

	msg, ok = client.find("attendance/room_1/present")
	require.True(t, ok)
	assert.Equal(t, 0, msg.payload)
}

func TestPublisherNeverBlocks(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "attendance", 1)
	// nicht gestartet: die Queue läuft sofort voll

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.EmitLog("cam", []string{"line"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EmitLog blocked on a full queue")
	}
	assert.Equal(t, uint64(9), p.Dropped())
	p.Stop()
}

func TestPublisherDropsWhileDisconnected(t *testing.T) {
	client := newFakeClient()
	client.connected = false
	p := NewPublisher(client, "attendance", 4)
	p.Start()
	defer p.Stop()

	p.EmitLog("cam", []string{"line"})
	require.Eventually(t, func() bool { return p.Dropped() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, client.snapshot())
}
