/*
Package converse is a turn-based conversation engine for scripted coaching
flows: an authored script of lines is played back one turn at a time, with
typing indicators, reading-time pacing, interactive prompts, conditional
skipping, points and checkpoint-based navigation.

# Concept

A conversation is a linear script, not a graph. The engine walks the lines in
order, skipping the ones whose show condition fails, pausing on the ones that
require an answer, and jumping where a goto line points. Interactivity comes
back asynchronously: the renderer reports what the user did as TurnEvents, and
a host-owned driver serializes those with the engine's own scheduled
continuations so no two engine entry points ever run at once.

Everything visual is behind the TurnRenderer port. The library ships a
terminal renderer for play mode and a transcript recorder for servers; a
browser front end would implement the same five methods.

# Navigation

Submit lines are checkpoint boundaries: completing one wipes the display and
pushes the next line onto the checkpoint trail. Back pops the trail and
replays from the previous checkpoint; deep links rebuild the trail to the
requested line's checkpoint ancestry. The trail, captured in a Snapshot, is
all a session needs to resume after a reload.

# Usage

Load a script, assemble a Conversation, run it, and feed events back:

	script, module, err := content.LoadFile("welcome.yaml")
	if err != nil {
		log.Fatal(err)
	}

	conv, err := converse.New(script,
		converse.WithModule(module),
		converse.WithRenderer(myRenderer),
		converse.WithStopAtEnd(),
	)
	if err != nil {
		log.Fatal(err)
	}

	go conv.Run(ctx)
	conv.Post(domain.TurnEvent{Type: domain.EventSubmitted, Value: "Ada"})

The cmd/converse CLI wraps the same assembly as play, serve, and mcp modes.
*/
package converse
