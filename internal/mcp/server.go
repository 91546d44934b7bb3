// Package mcp exposes the governance kernel over the Model Context
// Protocol. Tools front the intent compiler, the mutation authority, and
// the audit and violation logs; every mutation path still goes through the
// authority, so MCP callers get the same serialization and audit guarantees
// as in-process ones.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docflowGM/holocron/internal/governance/authority"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	"github.com/docflowGM/holocron/internal/storage"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "holocron"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Kernel bundles the governance components the MCP tools front. All fields
// are required.
type Kernel struct {
	Compiler   intent.Compiler
	Authority  *authority.Authority
	Host       host.Host
	Mutations  storage.MutationLogStore
	Violations storage.ViolationStore
	Monitor    *monitor.Registry
}

// Server hosts the MCP server over stdio.
type Server struct {
	mcpServer *mcp.Server
}

// NewServer creates a configured MCP server with every kernel tool
// registered.
func NewServer(k Kernel) (*Server, error) {
	if k.Authority == nil {
		return nil, fmt.Errorf("authority is required")
	}
	if k.Host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if k.Mutations == nil {
		return nil, fmt.Errorf("mutation log store is required")
	}
	if k.Violations == nil {
		return nil, fmt.Errorf("violation store is required")
	}
	if k.Monitor == nil {
		return nil, fmt.Errorf("monitor registry is required")
	}

	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(server, CompileStepTool(), CompileStepHandler(k))
	mcp.AddTool(server, ApplyStepTool(), ApplyStepHandler(k))
	mcp.AddTool(server, RollbackMutationTool(), RollbackMutationHandler(k))
	mcp.AddTool(server, EntitySnapshotTool(), EntitySnapshotHandler(k))
	mcp.AddTool(server, MutationLogExportTool(), MutationLogExportHandler(k))
	mcp.AddTool(server, ViolationsExportTool(), ViolationsExportHandler(k))
	mcp.AddTool(server, ViolationSummaryTool(), ViolationSummaryHandler(k))
	return &Server{mcpServer: server}, nil
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends. Context cancellation is a clean shutdown, not an error.
func (s *Server) Serve(ctx context.Context) error {
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
