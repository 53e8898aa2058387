package main

// Compiled-in modules.
import (
	_ "github.com/mpdagents/mpdchat/internal/gateway"
	_ "github.com/mpdagents/mpdchat/modules/checkpoint/memory"
	_ "github.com/mpdagents/mpdchat/modules/checkpoint/sqlite"
	_ "github.com/mpdagents/mpdchat/modules/provider/anthropic"
	_ "github.com/mpdagents/mpdchat/modules/provider/openai"
	_ "github.com/mpdagents/mpdchat/modules/retrieval/corpus"
)
