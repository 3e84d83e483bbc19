package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerProducerOrderPreserved(t *testing.T) {
	b := New(256)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				b.Publish(Event{
					Source:   KindElement,
					SourceID: string(rune('a' + p)),
					Command:  CommandReportStatus,
					Payload:  i,
				})
			}
		}()
	}
	wg.Wait()

	lastSeen := map[string]int{}
	for n := 0; n < 4*32; n++ {
		ev, ok := b.Consume()
		require.True(t, ok)
		seq := ev.Payload.(int)
		if last, seen := lastSeen[ev.SourceID]; seen {
			require.Greater(t, seq, last, "producer %s out of order", ev.SourceID)
		}
		lastSeen[ev.SourceID] = seq
	}
}

func TestConsumeAfterCloseDrainsThenStops(t *testing.T) {
	b := New(8)
	b.Publish(Event{Source: KindPeripheral, Command: CommandButtonPressed})
	b.Close()

	ev, ok := b.Consume()
	require.True(t, ok)
	require.Equal(t, CommandButtonPressed, ev.Command)

	_, ok = b.Consume()
	require.False(t, ok)
}

func TestPublishAfterCloseIsDiscarded(t *testing.T) {
	b := New(1)
	b.Close()
	b.Publish(Event{Command: CommandReportStatus}) // must not panic or block

	_, ok := b.Consume()
	require.False(t, ok)
}
