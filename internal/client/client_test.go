package client_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"iot-simulator/internal/client"
	"iot-simulator/internal/config"
	"iot-simulator/internal/models"
	"iot-simulator/internal/processor"
	"iot-simulator/internal/sensor"
	"iot-simulator/internal/server"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:               "localhost",
			Port:               8765,
			SensorReadInterval: 50 * time.Millisecond,
			MaxClients:         10,
		},
		Data: config.DataConfig{
			MaxReadingsPerSensor: 100,
			CacheDuration:        30 * time.Second,
		},
		Alerts: map[models.SensorType]config.AlertThreshold{
			models.SensorTypeTemperature: {High: thresholdPtr(28.0), Low: thresholdPtr(15.0), Enabled: true},
		},
		HTTP: config.HTTPConfig{AllowedOrigins: []string{"*"}},
	}
}

func thresholdPtr(v float64) *float64 {
	return &v
}

func testSensors(t *testing.T) []sensor.Sensor {
	t.Helper()

	temperature, err := sensor.New("temperature", "temperature", "Living Room",
		sensor.WithName("Living Room Temperature"))
	require.NoError(t, err)

	humidity, err := sensor.New("humidity", "humidity", "Living Room",
		sensor.WithName("Living Room Humidity"))
	require.NoError(t, err)

	motion, err := sensor.New("motion", "motion", "Front Door",
		sensor.WithName("Front Door Motion"))
	require.NoError(t, err)

	return []sensor.Sensor{temperature, humidity, motion}
}

func tempReading(sensorID string, value float64, ts time.Time) models.SensorReading {
	return models.SensorReading{
		SensorID:   sensorID,
		SensorType: models.SensorTypeTemperature,
		Value:      value,
		Unit:       "°C",
		Status:     models.StatusActive,
		Timestamp:  ts,
		Location:   "Living Room",
		Name:       "Living Room Temperature",
	}
}

type testEnv struct {
	proc *processor.DataProcessor
	url  string
}

// newTestEnv 启动一个真实的广播服务端并返回其 WebSocket 地址
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	proc := processor.NewDataProcessor(cfg, zap.NewNop())
	srv := server.NewBroadcastServer(cfg, proc, testSensors(t), zap.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{proc: proc, url: wsURL(ts)}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// connectClient 建立连接并在后台启动读循环，清理时关闭客户端
func connectClient(t *testing.T, url string, h client.Handler) (*client.Client, chan error) {
	t.Helper()
	cli := client.NewClient(client.Options{URL: url})
	require.NoError(t, cli.Connect(context.Background()))
	t.Cleanup(func() { cli.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- cli.Listen(context.Background(), h) }()
	return cli, errCh
}

func await[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestClient_ConnectAndReceiveRoster(t *testing.T) {
	env := newTestEnv(t)
	rosters := make(chan models.SensorListMessage, 4)
	cli, errCh := connectClient(t, env.url, client.Handler{
		OnSensorList: func(m models.SensorListMessage) { rosters <- m },
	})

	roster := await(t, rosters, "sensor list")
	require.Len(t, roster.Sensors, 3)
	ids := []string{roster.Sensors[0].ID, roster.Sensors[1].ID, roster.Sensors[2].ID}
	assert.Equal(t, []string{"temperature", "humidity", "motion"}, ids)
	assert.Equal(t, 3, roster.ServerInfo.TotalSensors)
	assert.Equal(t, 1, roster.ServerInfo.ConnectedClients)

	require.NoError(t, cli.Close())
	assert.NoError(t, await(t, errCh, "listen to stop"))
}

func TestClient_RequestHistory(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now()
	for i, v := range []float64{22, 23, 24} {
		require.NoError(t, env.proc.Store(tempReading("temperature", v, base.Add(time.Duration(i)*time.Second))))
	}

	histories := make(chan models.SensorHistoryMessage, 1)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnSensorHistory: func(m models.SensorHistoryMessage) { histories <- m },
	})

	require.NoError(t, cli.RequestHistory("temperature", 2))

	msg := await(t, histories, "sensor history")
	assert.Equal(t, "temperature", msg.SensorID)
	assert.Equal(t, 2, msg.TotalReadings)
	require.Len(t, msg.History, 2)
	assert.Equal(t, 24.0, msg.History[0].Value)
	assert.Equal(t, 23.0, msg.History[1].Value)
}

func TestClient_RequestStatistics_SingleSensor(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now()
	for i, v := range []float64{22, 23, 24} {
		require.NoError(t, env.proc.Store(tempReading("temperature", v, base.Add(time.Duration(i)*time.Second))))
	}

	stats := make(chan models.StatisticsMessage, 1)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnStatistics: func(m models.StatisticsMessage) { stats <- m },
	})

	require.NoError(t, cli.RequestStatistics("temperature"))

	msg := await(t, stats, "statistics")
	require.NotNil(t, msg.SensorID)
	assert.Equal(t, "temperature", *msg.SensorID)

	payload, ok := msg.Statistics.(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 23.0, payload["average"].(float64), 1e-9)
	assert.Equal(t, float64(3), payload["total_readings"])
}

func TestClient_RequestStatistics_AllSensors(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.proc.Store(tempReading("temperature", 22.0, time.Now())))

	stats := make(chan models.StatisticsMessage, 1)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnStatistics: func(m models.StatisticsMessage) { stats <- m },
	})

	require.NoError(t, cli.RequestStatistics(""))

	msg := await(t, stats, "statistics")
	assert.Nil(t, msg.SensorID)

	payload, ok := msg.Statistics.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, payload, "temperature")
	assert.NotContains(t, payload, "humidity")
}

func TestClient_ToggleSensor(t *testing.T) {
	env := newTestEnv(t)
	rosters := make(chan models.SensorListMessage, 4)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnSensorList: func(m models.SensorListMessage) { rosters <- m },
	})

	initial := await(t, rosters, "initial sensor list")
	assert.Equal(t, models.StatusActive, initial.Sensors[0].Status)

	require.NoError(t, cli.ToggleSensor("temperature"))

	updated := await(t, rosters, "updated sensor list")
	require.Len(t, updated.Sensors, 3)
	assert.Equal(t, models.StatusInactive, updated.Sensors[0].Status)
	assert.Equal(t, models.StatusActive, updated.Sensors[1].Status)
}

func TestClient_RequestSystemInfo(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now()
	require.NoError(t, env.proc.Store(tempReading("temperature", 22.0, base)))
	require.NoError(t, env.proc.Store(tempReading("temperature", 23.0, base.Add(time.Second))))

	infos := make(chan models.SystemInfoMessage, 1)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnSystemInfo: func(m models.SystemInfoMessage) { infos <- m },
	})

	require.NoError(t, cli.RequestSystemInfo())

	msg := await(t, infos, "system info")
	assert.EqualValues(t, 2, msg.Info.TotalReadings)
	assert.Equal(t, 1, msg.Info.ConnectedClients)
	assert.Equal(t, int64(1), msg.Info.TotalClientConnections)
	assert.False(t, msg.Info.ServerUptime.IsZero())
}

func TestClient_AlertLifecycle(t *testing.T) {
	env := newTestEnv(t)
	// 30.0 高于 28.0 阈值，入库即产生告警
	require.NoError(t, env.proc.Store(tempReading("temperature", 30.0, time.Now())))

	alertsCh := make(chan models.AlertsMessage, 4)
	cli, _ := connectClient(t, env.url, client.Handler{
		OnAlerts: func(m models.AlertsMessage) { alertsCh <- m },
	})

	require.NoError(t, cli.RequestAlerts("", 0, false))
	msg := await(t, alertsCh, "alerts")
	require.Equal(t, 1, msg.Count)
	alertID := msg.Alerts[0].AlertID
	assert.False(t, msg.Alerts[0].Acknowledged)

	require.NoError(t, cli.AcknowledgeAlert(alertID, "viewer"))
	msg = await(t, alertsCh, "acknowledged snapshot")
	require.Len(t, msg.Alerts, 1)
	assert.True(t, msg.Alerts[0].Acknowledged)
	require.NotNil(t, msg.Alerts[0].AcknowledgedBy)
	assert.Equal(t, "viewer", *msg.Alerts[0].AcknowledgedBy)
	assert.False(t, msg.Alerts[0].Resolved)

	require.NoError(t, cli.ResolveAlert(alertID))
	msg = await(t, alertsCh, "resolved snapshot")
	require.Len(t, msg.Alerts, 1)
	assert.True(t, msg.Alerts[0].Resolved)
	require.NotNil(t, msg.Alerts[0].ResolvedAt)
}

func TestClient_DispatchesSensorData(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	reading := tempReading("temperature", 23.5, time.Now())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		payload, _ := json.Marshal(models.SensorDataMessage{
			Type:      models.MessageTypeSensorData,
			Data:      reading,
			Timestamp: time.Now(),
		})
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		// 未知类型消息应被跳过而不中断读循环
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
	}))
	t.Cleanup(ts.Close)

	dataCh := make(chan models.SensorDataMessage, 1)
	cli := client.NewClient(client.Options{URL: wsURL(ts)})
	require.NoError(t, cli.Connect(context.Background()))
	t.Cleanup(func() { cli.Close() })

	go cli.Listen(context.Background(), client.Handler{
		OnSensorData: func(m models.SensorDataMessage) { dataCh <- m },
	})

	msg := await(t, dataCh, "sensor data")
	assert.Equal(t, models.MessageTypeSensorData, msg.Type)
	assert.Equal(t, "temperature", msg.Data.SensorID)
	assert.Equal(t, 23.5, msg.Data.Value)
}

func TestClient_CommandEnvelope(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	received := make(chan []byte, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- raw
		}
	}))
	t.Cleanup(ts.Close)

	cli := client.NewClient(client.Options{URL: wsURL(ts)})
	require.NoError(t, cli.Connect(context.Background()))
	t.Cleanup(func() { cli.Close() })

	require.NoError(t, cli.RequestHistory("temperature", 5))

	var history map[string]any
	require.NoError(t, json.Unmarshal(await(t, received, "history command"), &history))
	assert.Equal(t, "get_history", history["command"])
	assert.Equal(t, "temperature", history["sensor_id"])
	assert.Equal(t, float64(5), history["limit"])
	assert.Contains(t, history, "timestamp")
	assert.NotContains(t, history, "minutes")
	assert.NotContains(t, history, "active_only")
	assert.NotContains(t, history, "alert_id")

	require.NoError(t, cli.RequestAlerts("", 30, true))

	var alerts map[string]any
	require.NoError(t, json.Unmarshal(await(t, received, "alerts command"), &alerts))
	assert.Equal(t, "get_alerts", alerts["command"])
	assert.Equal(t, float64(30), alerts["minutes"])
	assert.Equal(t, true, alerts["active_only"])
	assert.NotContains(t, alerts, "sensor_id")
	assert.NotContains(t, alerts, "limit")
}

func TestClient_ReconnectsAfterConnectionDrop(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var connCount int32
	second := make(chan struct{})
	hold := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&connCount, 1) == 1 {
			// 第一次连接立即断开，触发客户端重连
			return
		}
		close(second)
		<-hold
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(hold) })

	cli := client.NewClient(client.Options{URL: wsURL(ts), Reconnect: true})
	require.NoError(t, cli.Connect(context.Background()))
	t.Cleanup(func() { cli.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- cli.Listen(context.Background(), client.Handler{}) }()

	await(t, second, "second connection")
	assert.EqualValues(t, 2, atomic.LoadInt32(&connCount))

	require.NoError(t, cli.Close())
	assert.NoError(t, await(t, errCh, "listen to stop"))
}

func TestClient_ConnectRetriesUntilServerUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := testConfig()
	proc := processor.NewDataProcessor(cfg, zap.NewNop())
	srv := server.NewBroadcastServer(cfg, proc, testSensors(t), zap.NewNop())

	ts := httptest.NewUnstartedServer(srv.Handler())
	_ = ts.Listener.Close()
	ts.Listener = ln
	t.Cleanup(ts.Close)

	cli := client.NewClient(client.Options{
		URL:            "ws://" + ln.Addr().String() + "/ws",
		ConnectTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { cli.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- cli.Connect(context.Background()) }()

	// 首次握手在 HTTP 服务启动前超时，退避后的重试应当成功
	time.Sleep(150 * time.Millisecond)
	ts.Start()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connect to succeed")
	}
}

func TestClient_ConnectGivesUpAfterMaxElapsedTime(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cli := client.NewClient(client.Options{
		URL:            "ws://" + addr + "/ws",
		MaxElapsedTime: 10 * time.Millisecond,
	})

	err = cli.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestClient_ConnectStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	cli := client.NewClient(client.Options{URL: "ws://" + addr + "/ws"})
	require.Error(t, cli.Connect(ctx))
}

func TestClient_ListenStopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t)
	cli := client.NewClient(client.Options{URL: env.url})
	require.NoError(t, cli.Connect(context.Background()))
	t.Cleanup(func() { cli.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- cli.Listen(ctx, client.Handler{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, await(t, errCh, "listen to stop"), context.Canceled)
}

func TestClient_CommandsBeforeConnect(t *testing.T) {
	cli := client.NewClient(client.Options{URL: "ws://localhost:1/ws"})
	assert.ErrorIs(t, cli.RequestSensors(), client.ErrNotConnected)
	assert.ErrorIs(t, cli.Listen(context.Background(), client.Handler{}), client.ErrNotConnected)
}
