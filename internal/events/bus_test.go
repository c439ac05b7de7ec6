package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/stretchr/testify/suite"
)

type BusTestSuite struct {
	suite.Suite
	bus *Bus
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusTestSuite))
}

func (suite *BusTestSuite) SetupTest() {
	suite.bus = NewBus(nil)
}

func (suite *BusTestSuite) TestFanOut() {
	a, cancelA := suite.bus.Subscribe(4)
	defer cancelA()

	b, cancelB := suite.bus.Subscribe(4)
	defer cancelB()

	suite.bus.Publish(types.Event{Kind: types.EventAgentState, AgentID: "a-1", State: types.AgentStateRunning})

	for _, ch := range []<-chan types.Event{a, b} {
		event := <-ch
		suite.Equal(types.EventAgentState, event.Kind)
		suite.Equal("a-1", event.AgentID)
		suite.False(event.Time.IsZero())
	}
}

func (suite *BusTestSuite) TestKeepsGivenTime() {
	ch, cancel := suite.bus.Subscribe(1)
	defer cancel()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.bus.Publish(types.Event{Kind: types.EventHealth, Time: at})

	suite.Equal(at, (<-ch).Time)
}

func (suite *BusTestSuite) TestSlowSubscriberDoesNotBlock() {
	_, cancel := suite.bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})

	go func() {
		for i := 0; i < 10; i++ {
			suite.bus.Publish(types.Event{Kind: types.EventRiskDenied})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		suite.Fail("publish blocked on a full subscriber")
	}

	suite.Equal(uint64(9), suite.bus.Dropped())
}

func (suite *BusTestSuite) TestCancelClosesChannel() {
	ch, cancel := suite.bus.Subscribe(1)
	suite.Equal(1, suite.bus.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	suite.False(ok)
	suite.Equal(0, suite.bus.Subscribers())

	suite.NotPanics(func() {
		suite.bus.Publish(types.Event{Kind: types.EventHealth})
	})
}

func (suite *BusTestSuite) TestClose() {
	ch, cancel := suite.bus.Subscribe(1)
	suite.bus.Close()

	_, ok := <-ch
	suite.False(ok)
	suite.NotPanics(cancel)

	late, _ := suite.bus.Subscribe(1)
	_, ok = <-late
	suite.False(ok)
}

func (suite *BusTestSuite) TestConcurrentPublishers() {
	ch, cancel := suite.bus.Subscribe(1000)
	defer cancel()

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				suite.bus.Publish(types.Event{Kind: types.EventPositionOpened})
			}
		}()
	}

	wg.Wait()
	suite.Len(ch, 500)
}
