package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

func query(t *testing.T, e *Emulator, q string) string {
	t.Helper()
	resp, err := Query(context.Background(), e, q)
	require.NoError(t, err)
	return resp
}

func TestEmulatorCommonCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("Identity", func(t *testing.T) {
		e := NewEmulator(EmulatorConfig{Identity: "ACME,X1,42,1.0"})
		assert.Equal(t, "ACME,X1,42,1.0", query(t, e, "*IDN?"))
	})

	t.Run("EnableRegisters", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "*ESE 61"))
		require.NoError(t, e.Write(ctx, "*SRE 255"))
		assert.Equal(t, "61", query(t, e, "*ESE?"))
		// Bit 6 of SRE is not settable.
		assert.Equal(t, "191", query(t, e, "*SRE?"))
	})

	t.Run("EventRegisterClearsOnRead", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "*OPC"))
		assert.Equal(t, "1", query(t, e, "*ESR?"))
		assert.Equal(t, "0", query(t, e, "*ESR?"))
	})

	t.Run("UndefinedHeaderQueuesError", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "BOGUS"))

		assert.Equal(t, byte(EmulatorEAV), e.StatusByte()&EmulatorEAV)
		assert.Equal(t, `-113,"Undefined header"`, query(t, e, "SYST:ERR?"))
		assert.Equal(t, `0,"No error"`, query(t, e, "SYST:ERR?"))

		esr, _ := e.StandardEvent()
		assert.Equal(t, scpi.EventCommandError, esr&scpi.EventCommandError)
	})

	t.Run("ClearStatus", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		e.InjectError(-222, "Data out of range")
		e.SetCondition(RegisterOperation, 0x0010)
		require.NoError(t, e.Write(ctx, "*CLS"))

		event, _, cond := e.Register(RegisterOperation)
		assert.Zero(t, event)
		assert.Equal(t, uint16(0x0010), cond)
		assert.Zero(t, e.StatusByte()&EmulatorEAV)
	})

	t.Run("CompoundMessage", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "*ESE 1;*SRE 32"))
		esr, ese := e.StandardEvent()
		assert.Zero(t, esr)
		assert.Equal(t, uint8(1), ese)
		assert.Equal(t, uint8(32), e.ServiceRequestEnable())
	})

	t.Run("ReadWithoutQuery", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		_, err := e.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
		esr, _ := e.StandardEvent()
		assert.Equal(t, scpi.EventQueryError, esr&scpi.EventQueryError)
	})
}

func TestEmulatorStatusRegisters(t *testing.T) {
	ctx := context.Background()

	t.Run("LongAndShortForms", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, ":STATus:OPERation:ENABle 1024"))
		assert.Equal(t, "1024", query(t, e, "STAT:OPER:ENAB?"))
	})

	t.Run("TransitionFilters", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "STAT:QUES:PTR 0"))
		require.NoError(t, e.Write(ctx, "STAT:QUES:NTR 1"))

		e.SetCondition(RegisterQuestionable, 0x0001)
		assert.Equal(t, "0", query(t, e, "STAT:QUES:EVEN?"))

		e.SetCondition(RegisterQuestionable, 0x0000)
		assert.Equal(t, "1", query(t, e, "STAT:QUES?"))
		assert.Equal(t, "0", query(t, e, "STAT:QUES?"))
	})

	t.Run("ConditionIsLive", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		e.SetCondition(RegisterOperation, 0x0100)
		assert.Equal(t, "256", query(t, e, "STAT:OPER:COND?"))
		assert.Equal(t, "256", query(t, e, "STAT:OPER:COND?"))
	})

	t.Run("Preset", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "STAT:OPER:ENAB 255"))
		require.NoError(t, e.Write(ctx, "STAT:PRES"))
		assert.Equal(t, "0", query(t, e, "STAT:OPER:ENAB?"))
		assert.Equal(t, "32767", query(t, e, "STAT:OPER:PTR?"))
	})

	t.Run("SummaryBits", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "STAT:OPER:ENAB 16"))
		e.SetCondition(RegisterOperation, 0x0010)
		assert.Equal(t, byte(EmulatorOSB), e.StatusByte()&EmulatorOSB)
	})

	t.Run("OutOfRangeArgument", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		require.NoError(t, e.Write(ctx, "*ESE 300"))
		assert.Equal(t, `-222,"Data out of range"`, query(t, e, "SYST:ERR?"))
	})
}

func TestEmulatorServiceRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("RaisedOnRisingSummary", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())

		var mu sync.Mutex
		var got []byte
		done := make(chan struct{}, 4)
		e.SetServiceRequestHandler(func(stb byte) {
			mu.Lock()
			got = append(got, stb)
			mu.Unlock()
			done <- struct{}{}
		})
		require.NoError(t, e.EnableServiceRequest(ctx))

		require.NoError(t, e.Write(ctx, "*ESE 1"))
		require.NoError(t, e.Write(ctx, "*SRE 32"))
		require.NoError(t, e.Write(ctx, "*OPC"))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("service request not raised")
		}

		mu.Lock()
		require.Len(t, got, 1)
		assert.Equal(t, byte(EmulatorRQS|EmulatorESB), got[0]&(EmulatorRQS|EmulatorESB))
		mu.Unlock()

		// Serial poll reports RQS once.
		stb, err := e.ReadStatusByte(ctx)
		require.NoError(t, err)
		assert.Equal(t, byte(EmulatorRQS), stb&EmulatorRQS)
		stb, err = e.ReadStatusByte(ctx)
		require.NoError(t, err)
		assert.Zero(t, stb&EmulatorRQS)
	})

	t.Run("NotDeliveredWhenDisabled", func(t *testing.T) {
		e := NewEmulator(DefaultEmulatorConfig())
		called := make(chan struct{}, 1)
		e.SetServiceRequestHandler(func(byte) { called <- struct{}{} })

		require.NoError(t, e.Write(ctx, "*SRE 4"))
		e.InjectError(-300, "Device-specific error")

		select {
		case <-called:
			t.Fatal("handler called while SRQ disabled")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("DelayedOperationComplete", func(t *testing.T) {
		e := NewEmulator(EmulatorConfig{OperationCompleteDelay: 20 * time.Millisecond})
		require.NoError(t, e.Write(ctx, "*OPC"))
		esr, _ := e.StandardEvent()
		assert.Zero(t, esr&scpi.EventOperationComplete)

		assert.Eventually(t, func() bool {
			esr, _ := e.StandardEvent()
			return esr&scpi.EventOperationComplete != 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestEmulatorReadings(t *testing.T) {
	ctx := context.Background()
	e := NewEmulator(DefaultEmulatorConfig())
	e.QueueReading(1.5)

	require.NoError(t, e.Write(ctx, "INIT"))
	event, _, cond := e.Register(RegisterMeasurement)
	assert.Equal(t, uint16(MeasurementReadingAvailable), event)
	assert.Equal(t, uint16(MeasurementReadingAvailable), cond)

	assert.Equal(t, "1.500000E+00", query(t, e, "READ?"))
	_, _, cond = e.Register(RegisterMeasurement)
	assert.Zero(t, cond)
}

func TestEmulatorFaults(t *testing.T) {
	ctx := context.Background()
	e := NewEmulator(DefaultEmulatorConfig())
	boom := errors.New("link down")

	e.FailOn("*RST", boom)
	assert.ErrorIs(t, e.Write(ctx, "*rst"), boom)
	assert.NoError(t, e.Write(ctx, "*CLS"))

	e.FailOn(scpi.QueryStatusByte, boom)
	_, err := e.ReadStatusByte(ctx)
	assert.ErrorIs(t, err, boom)

	e.ClearFaults()
	_, err = e.ReadStatusByte(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"*rst", "*CLS"}, e.Written())
}

func TestEmulatorLifecycle(t *testing.T) {
	ctx := context.Background()
	e := NewEmulator(DefaultEmulatorConfig())

	assert.True(t, IsEmulated(e))
	require.NoError(t, e.Clear(ctx))
	assert.Equal(t, 1, e.Clears())

	e.SetTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, e.Timeout())

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 2, e.CloseCalls())
	assert.False(t, e.IsOpen())
	assert.ErrorIs(t, e.Write(ctx, "*CLS"), ErrClosed)

	ch, err := e.Open(ctx, resource.MustParse("TCPIP::emulator::INSTR"))
	require.NoError(t, err)
	assert.Same(t, e, ch)
	assert.True(t, e.IsOpen())
}
