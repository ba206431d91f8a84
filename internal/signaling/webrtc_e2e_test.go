package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
)

func newVNetAPI(n *vnet.Net) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.SetNet(n)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// newVNetPair returns two APIs whose peer connections can only reach each
// other over an in-process virtual network.
func newVNetPair(t *testing.T) (broadcaster, viewer *webrtc.API) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net: %v", err)
	}
	netV, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net: %v", err)
	}
	if err := router.AddNet(netV); err != nil {
		t.Fatalf("add net: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	if broadcaster, err = newVNetAPI(netB); err != nil {
		t.Fatalf("broadcaster api: %v", err)
	}
	if viewer, err = newVNetAPI(netV); err != nil {
		t.Fatalf("viewer api: %v", err)
	}
	return broadcaster, viewer
}

// localDescription waits for ICE gathering so the SDP carries every
// candidate and no trickling is needed.
func localDescription(t *testing.T, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) json.RawMessage {
	t.Helper()
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		t.Fatalf("set local description: %v", err)
	}
	select {
	case <-gathered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out gathering candidates")
	}
	raw, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		t.Fatalf("marshal description: %v", err)
	}
	return raw
}

func decodeDescription(t *testing.T, frame map[string]any, field string) webrtc.SessionDescription {
	t.Helper()
	raw, err := json.Marshal(frame[field])
	if err != nil {
		t.Fatalf("re-marshal %s: %v", field, err)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		t.Fatalf("decode %s: %v", field, err)
	}
	return desc
}

func TestServer_RelaysWebRTCNegotiation(t *testing.T) {
	if testing.Short() {
		t.Skip("webrtc negotiation over vnet")
	}

	env := newTestEnv(t, nil)
	apiB, apiV := newVNetPair(t)

	pcB, err := apiB.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("broadcaster pc: %v", err)
	}
	t.Cleanup(func() { _ = pcB.Close() })
	pcV, err := apiV.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("viewer pc: %v", err)
	}
	t.Cleanup(func() { _ = pcV.Close() })

	received := make(chan string, 1)
	pcV.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			select {
			case received <- string(msg.Data):
			default:
			}
		})
	})

	dc, err := pcB.CreateDataChannel("live", nil)
	if err != nil {
		t.Fatalf("create datachannel: %v", err)
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	bws := env.dial(t)
	vws := env.dial(t)

	sendJSON(t, bws, map[string]any{"type": "broadcaster_join", "broadcasterId": "b1"})
	readAck(t, bws, "broadcaster_join")
	sendJSON(t, vws, map[string]any{"type": "viewer_join", "viewerId": "v1"})
	readAck(t, vws, "viewer_join")
	readUntil(t, bws, "viewer_joined")

	offer, err := pcB.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	sendJSON(t, bws, map[string]any{
		"type":     "offer",
		"viewerId": "v1",
		"offer":    localDescription(t, pcB, offer),
	})

	if err := pcV.SetRemoteDescription(decodeDescription(t, readUntil(t, vws, "offer"), "offer")); err != nil {
		t.Fatalf("viewer set remote offer: %v", err)
	}
	answer, err := pcV.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	sendJSON(t, vws, map[string]any{
		"type":     "answer",
		"viewerId": "v1",
		"answer":   localDescription(t, pcV, answer),
	})

	if err := pcB.SetRemoteDescription(decodeDescription(t, readUntil(t, bws, "answer"), "answer")); err != nil {
		t.Fatalf("broadcaster set remote answer: %v", err)
	}

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for datachannel to open")
	}
	if err := dc.SendText("frame-0"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-received:
		if got != "frame-0" {
			t.Fatalf("viewer received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for viewer to receive data")
	}

	_ = bws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
