package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDelivers(t *testing.T) {
	bus := NewBus(10)
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Emit(Plugins, map[string]string{"plugin": "hello"})

	ev := <-ch
	assert.Equal(t, Plugins, ev.Name)
	assert.Equal(t, map[string]string{"plugin": "hello"}, ev.Payload)
}

func TestBusDropsWithoutReordering(t *testing.T) {
	bus := NewBus(3)
	ch := bus.Subscribe()

	for i := 0; i < 10; i++ {
		bus.Emit(DownloadInfos, i)
	}
	bus.Unsubscribe(ch)

	var got []int
	for ev := range ch {
		got = append(got, ev.Payload.(int))
	}
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestEmitWithoutSubscribers(t *testing.T) {
	bus := NewBus(0)
	assert.NotPanics(t, func() { bus.Emit(ConfigReload, "Sparus.json") })
	assert.Equal(t, 0, bus.Subscribers())

	ch := bus.Subscribe()
	assert.Equal(t, 1, bus.Subscribers())
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestEmitterFunc(t *testing.T) {
	var names []string
	e := EmitterFunc(func(name string, _ interface{}) { names = append(names, name) })
	e.Emit(Plugins, nil)
	Discard.Emit(Plugins, nil)
	assert.Equal(t, []string{Plugins}, names)
}
