// Package agentloop runs the nanocode agentic loop: it pairs a model reached
// through unifiedllm with a small set of local developer tools.
//
// # Architecture
//
//   - Session: owns the conversation, requests completions, dispatches tool
//     calls one at a time and decides when a turn is complete.
//   - ToolRegistry: registration and dispatch of tools. Invoke never fails;
//     executor errors come back as text starting with "error: ".
//   - ExecutionEnvironment: where tools run. LocalExecutionEnvironment backs
//     the core tools with the local filesystem and a Sandbox.
//   - Sandbox: bounded-time, bounded-output shell command execution.
//   - EventEmitter: typed events delivered synchronously to the host.
//
// # Quick Start
//
//	cfg, err := unifiedllm.ResolveProviderConfig(environ)
//	client, err := unifiedllm.NewClientFromConfig(cfg)
//
//	env := agentloop.NewLocalExecutionEnvironment(dir, nil)
//	registry := agentloop.NewToolRegistry()
//	agentloop.RegisterCoreTools(registry, env)
//
//	prompt := agentloop.BuildSystemPrompt(agentloop.GatherSystemInfo(env))
//	session := agentloop.NewSession(client, registry, prompt,
//	    agentloop.WithEventHandler(func(e agentloop.SessionEvent) {
//	        fmt.Printf("[%s] %v\n", e.Kind, e.Data)
//	    }))
//
//	if err := session.Submit(ctx, "list files"); err != nil {
//	    log.Fatal(err)
//	}
package agentloop
