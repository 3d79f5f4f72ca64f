package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineTransitions(t *testing.T) {
	m := machine{state: StateIdle}
	require.NoError(t, m.to(StateFetching))
	require.NoError(t, m.to(StateProbing))
	require.NoError(t, m.to(StateVersioning))
	require.NoError(t, m.to(StateDone))
	assert.True(t, IsTerminal(m.state))
	assert.Error(t, m.to(StateFetching))

	v := machine{state: StatePending}
	assert.Error(t, v.to(StatePublishing), "rendering cannot be skipped")
	require.NoError(t, v.to(StatePlanning))
	v.fail(StateVersionFailed)
	assert.Equal(t, StateVersionFailed, v.state)
	assert.True(t, IsTerminal(v.state))
	assert.False(t, IsTerminal(StateRendering))
}
