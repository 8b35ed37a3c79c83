package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinicbook_backend/platform/httpkit"
	"clinicbook_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestWebSocket_PatientReceivesOwnEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Nop())
	handler := NewHandler(hub, logger.Nop(), nil)
	patientID := uuid.New()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		httpkit.SetIdentity(c, patientID, []string{"patient"})
		c.Next()
	})
	handler.RegisterRoutes(r.Group("/live"))

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live/appointments/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	defer conn.Close()

	topic := PatientTopic(patientID)
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(TopicAppointments) != 0 {
		t.Fatal("expected patient not to be subscribed to the global topic")
	}

	_ = hub.Publish(context.Background(), topic, []byte(`{"type":"appointment.confirmed"}`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("expected frame, got %v", err)
	}
	if frame.Topic != topic || string(frame.Event) != `{"type":"appointment.confirmed"}` {
		t.Fatalf("unexpected frame %+v", frame)
	}
}
