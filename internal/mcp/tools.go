package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/ipc"
)

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.client.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{
		Frames:         st.Frames,
		OldestFrame:    st.OldestFrame,
		NewestFrame:    st.NewestFrame,
		TrackedKeys:    st.TrackedKeys,
		PendingManual:  st.PendingManual,
		QueueDepth:     st.QueueDepth,
		DroppedBatches: st.DroppedBatches,
		Overruns:       st.Overruns,
		LeftPadding:    st.LeftPadding,
		Orientation:    st.Orientation,
		InsetsSource:   st.InsetsSource,
		UptimeSeconds:  st.UptimeSeconds,
	}, nil
}

func (s *Server) handleResolve(_ context.Context, _ *mcpsdk.CallToolRequest, args ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	if args.End < args.Start {
		return nil, ResolveOutput{}, fmt.Errorf("end (%d) is before start (%d)", args.End, args.Start)
	}

	res, err := s.client.Resolve(args.Start, args.End)
	if err != nil {
		return nil, ResolveOutput{}, err
	}

	out := ResolveOutput{
		HasWindow: res.HasWindow,
		Rects:     res.Rects,
		Evicted:   res.Evicted,
	}
	if res.HasWindow {
		out.WindowStart = res.Window.Start
		out.WindowEnd = res.Window.End
	}
	return nil, out, nil
}

func (s *Server) handleReset(_ context.Context, _ *mcpsdk.CallToolRequest, _ ResetInput) (*mcpsdk.CallToolResult, ResetOutput, error) {
	if err := s.client.ResetSession(); err != nil {
		return nil, ResetOutput{}, err
	}
	return nil, ResetOutput{Reset: true}, nil
}

func (s *Server) handleMaskNextFrame(_ context.Context, _ *mcpsdk.CallToolRequest, args MaskInput) (*mcpsdk.CallToolResult, MaskOutput, error) {
	if len(args.Rects) == 0 {
		return nil, MaskOutput{}, fmt.Errorf("rects must contain at least one rect")
	}
	for i, r := range args.Rects {
		if !r.Valid() {
			return nil, MaskOutput{}, fmt.Errorf("rect %d %s has right < left or bottom < top", i, r)
		}
	}

	if err := s.client.OccludeNextFrame(args.Rects...); err != nil {
		return nil, MaskOutput{}, err
	}
	return nil, MaskOutput{Queued: len(args.Rects)}, nil
}

func (s *Server) handleSetInsets(_ context.Context, _ *mcpsdk.CallToolRequest, args SetInsetsInput) (*mcpsdk.CallToolResult, SetInsetsOutput, error) {
	if args.Left < 0 {
		return nil, SetInsetsOutput{}, fmt.Errorf("left must be >= 0")
	}
	orientation, err := insets.ParseOrientation(args.Orientation)
	if err != nil {
		return nil, SetInsetsOutput{}, err
	}

	if err := s.client.SetInsets(ipc.SetInsetsPayload{
		Left:        args.Left,
		Orientation: orientation.String(),
	}); err != nil {
		return nil, SetInsetsOutput{}, err
	}
	return nil, SetInsetsOutput{Left: args.Left, Orientation: orientation.String()}, nil
}
