package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/michalmar/azure-ai-voicelive/internal/functions"
	"github.com/michalmar/azure-ai-voicelive/internal/voicelive"
)

// handleFunctionCall coordinates one function call turn: wait for the
// streamed arguments, wait for the current turn to finish, execute the
// handler, submit its output, and ask for a follow-up response.
//
// Both waits forward unrelated events to the dispatcher so audio and state
// keep flowing while the call is pending.
func (s *Session) handleFunctionCall(ctx context.Context, evt *voicelive.ServerEvent) error {
	item := evt.Item
	s.functionCallInProgress = true
	s.activeCallID = item.CallID

	logger := s.logger.With("function", item.Name, "call_id", item.CallID)
	logger.Info("function call detected")

	if err := s.client.send(clientMessage{
		Type:     "assistant_state",
		State:    StateFunctionCall,
		Function: item.Name,
	}); err != nil {
		return err
	}

	argsEvt, err := s.waitForEvent(ctx, voicelive.EventFunctionCallArgumentsDone)
	if err != nil {
		if isWaitTimeout(err) {
			logger.Error("timed out waiting for function call arguments")
			s.metrics.FunctionCall(item.Name, "timeout")
			return nil
		}
		return err
	}
	if argsEvt.CallID != item.CallID {
		logger.Warn("function call id mismatch", "got", argsEvt.CallID)
		s.metrics.FunctionCall(item.Name, "mismatch")
		return nil
	}

	// Let the model finish narrating the current turn before submitting the
	// output. A missing response.done is tolerated.
	if doneEvt, err := s.waitForEvent(ctx, voicelive.EventResponseDone); err != nil {
		if !isWaitTimeout(err) {
			return err
		}
		logger.Warn("turn did not complete before function execution")
	} else if err := s.handleEvent(ctx, doneEvt); err != nil {
		return err
	}

	result := s.registry.Execute(item.Name, functions.RawArguments(argsEvt.Arguments))
	output, err := json.Marshal(result)
	if err != nil {
		output = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}

	if err := s.remote.CreateItem(ctx, item.ID, voicelive.ConversationItem{
		Type:   voicelive.ItemFunctionCallOutput,
		CallID: item.CallID,
		Output: string(output),
	}); err != nil {
		logger.Error("function output submission failed", "error", err)
		s.metrics.FunctionCall(item.Name, "submit_failed")
		return nil
	}
	if err := s.remote.CreateResponse(ctx, ""); err != nil {
		logger.Error("follow-up response request failed", "error", err)
		s.metrics.FunctionCall(item.Name, "submit_failed")
		return nil
	}

	s.metrics.FunctionCall(item.Name, "ok")
	logger.Info("function call submitted")
	return nil
}

// waitForEvent receives remote events until one matches the wanted type,
// dispatching everything else along the way. The wait is bounded by the
// configured function call timeout.
func (s *Session) waitForEvent(ctx context.Context, want voicelive.EventType) (*voicelive.ServerEvent, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.FunctionCallTimeout)
	defer cancel()
	for {
		evt, err := s.remote.Recv(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, errWaitTimeout
			}
			return nil, err
		}
		if evt.Type == want {
			return evt, nil
		}
		if err := s.handleEvent(ctx, evt); err != nil {
			return nil, err
		}
	}
}

var errWaitTimeout = errors.New("bridge: timed out waiting for remote event")

func isWaitTimeout(err error) bool {
	return errors.Is(err, errWaitTimeout)
}
