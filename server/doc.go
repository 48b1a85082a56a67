// Package server
// Author: momentics <momentics@gmail.com>
//
// Application server on top of the socket engines: configuration, the
// session type handed to command handlers, the case-insensitive command
// dispatcher with its filter chain, the live session table with periodic
// snapshots, the idle session sweep, and Bootstrap for running several
// servers in one process.
//
// A minimal line protocol server:
//
//	srv, err := server.New(cfg, server.WithCommands(map[string]api.CommandHandler{
//		"ECHO": api.CommandFunc(func(s api.Session, p api.Package) error {
//			return s.SendString(p.(*api.StringPackage).Body)
//		}),
//	}))
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop()
package server
