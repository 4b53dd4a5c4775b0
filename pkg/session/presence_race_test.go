package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatcore/pkg/config"
	"chatcore/pkg/models"
	"chatcore/pkg/presence"
	"chatcore/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	id, user string
}

func (d *device) ID() string                 { return d.id }
func (d *device) User() string               { return d.user }
func (d *device) Close()                     {}
func (d *device) Send(models.Envelope) error { return nil }

// everyone is everyone's partner; the sleep stands in for a store scan
type slowPartners struct{ users []string }

func (s slowPartners) Partners(_ context.Context, user string) ([]string, error) {
	time.Sleep(time.Millisecond)
	var out []string
	for _, u := range s.users {
		if u != user {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestMultiDeviceChurnWithPresenceFanOut(t *testing.T) {
	for _, scope := range []string{config.PresenceScopePartners, config.PresenceScopeAll} {
		t.Run(scope, func(t *testing.T) {
			const nUsers, nDevices, rounds = 6, 3, 20
			users := make([]string, nUsers)
			for i := range users {
				users[i] = fmt.Sprintf("u%d@x.io", i)
			}

			reg := session.NewRegistry()
			b := presence.New(reg, slowPartners{users: users}, scope)
			b.Attach(reg)

			var mu sync.Mutex
			var edges []session.Edge
			perUser := map[string][]bool{}
			reg.Observe(func(e session.Edge) {
				// observers may read the registry while other edges are pending
				_ = reg.IsOnline(e.User)
				mu.Lock()
				edges = append(edges, e)
				perUser[e.User] = append(perUser[e.User], e.Online)
				mu.Unlock()
			})

			done := make(chan struct{})
			go func() {
				defer close(done)
				var wg sync.WaitGroup
				for _, u := range users {
					for d := 0; d < nDevices; d++ {
						wg.Add(1)
						go func(u string, d int) {
							defer wg.Done()
							for r := 0; r < rounds; r++ {
								c := &device{id: fmt.Sprintf("%s-%d-%d", u, d, r), user: u}
								_, err := reg.Register(u, c)
								assert.NoError(t, err)
								reg.Unregister(u, c)
							}
						}(u, d)
					}
				}
				wg.Wait()
			}()

			select {
			case <-done:
			case <-time.After(10 * time.Second):
				t.Fatal("concurrent registration did not finish")
			}

			mu.Lock()
			defer mu.Unlock()
			for i := 1; i < len(edges); i++ {
				require.Equal(t, edges[i-1].Seq+1, edges[i].Seq, "edges observed in order")
			}
			for _, u := range users {
				assert.False(t, reg.IsOnline(u))
				seq := perUser[u]
				require.NotEmpty(t, seq, u)
				require.Equal(t, 0, len(seq)%2, u)
				for i, online := range seq {
					assert.Equal(t, i%2 == 0, online, "%s edge %d", u, i)
				}
			}
		})
	}
}
