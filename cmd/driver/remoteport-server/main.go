// Command remoteport-server opens the ports configured via internal/config
// and exposes them over gRPC using internal/remoteport, so a host process on
// a different machine can drive the same DMX/RDM adapters this process has
// physically attached.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"openrdm/internal/config"
	"openrdm/internal/port"
	"openrdm/internal/remoteport"
	"openrdm/internal/remoteport/proto"
)

var listenPort = flag.Int("port", 8710, "gRPC listen port")

func main() {
	flag.Parse()

	cfg, err := config.LoadDeviceConfig()
	if err != nil {
		log.Fatalf("remoteport-server: load config: %v", err)
	}
	if len(cfg.Ports) == 0 {
		log.Fatal("remoteport-server: no ports configured")
	}

	var ports []*port.Port
	for i, pc := range cfg.Ports {
		p, err := port.Open(pc, cfg.Verbose, cfg.RDMDebug)
		if err != nil {
			log.Printf("remoteport-server: port %d (%s) opened not-initialized: %v", i, pc.Descriptor, err)
		}
		ports = append(ports, p)
	}
	defer func() {
		for _, p := range ports {
			p.Close()
		}
	}()

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(proto.Codec{}))
	proto.RegisterRemotePortServer(grpcServer, remoteport.NewServer(ports))
	reflection.Register(grpcServer)

	addr := fmt.Sprintf("0.0.0.0:%d", *listenPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("remoteport-server: listen: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("remoteport-server: shutting down")
		grpcServer.GracefulStop()
	}()

	log.Printf("remoteport-server: serving %d port(s) on %s", len(ports), addr)
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("remoteport-server: serve: %v", err)
	}
}
