package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/knagata/memosync-server/internal/store"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth := &fakeAuthStore{recs: map[string]*store.RoomAuthorization{
		"bench": sharedRoom("bench", "", "user-s"),
	}}
	hub := NewHub(auth, nil, nil)
	go hub.Run(ctx)

	admit := func(s *Session) {
		s.Commands <- &Command{Kind: CommandJoinRoom, Room: "bench"}
		for ev := range s.Events {
			if ev.Kind == EventJoinSuccess {
				return
			}
		}
	}

	sender := NewSession("sender", "sender")
	hub.RegisterSession(sender)
	admit(sender)
	go func() {
		for range sender.Events {
		}
	}()

	sessions := make([]*Session, 0, recipients)
	for i := 0; i < recipients; i++ {
		s := NewSession(fmt.Sprintf("conn-%d", i), "peer")
		hub.RegisterSession(s)
		admit(s)
		sessions = append(sessions, s)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := sessions[0]
	for _, s := range sessions[1:] {
		go func(sess *Session) {
			for range sess.Events {
			}
		}(s)
	}

	// Flush the presence backlog so only relay traffic is measured.
	for {
		select {
		case <-target.Events:
			continue
		default:
		}
		break
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandTextUpdate, Room: "bench", Content: "payload"}
		for ev := range target.Events {
			if ev.Kind == EventTextUpdate {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
