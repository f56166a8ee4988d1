// Package rtmp admits publishers from a joy4 RTMP server into the relay.
// Media is drained, not relayed; only the publish lifecycle matters here.
package rtmp

import (
	"errors"
	"io"

	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/format/rtmp"
	"github.com/rs/zerolog/log"
)

// Ingestor is the part of the orchestrator this adapter needs.
type Ingestor interface {
	OnPrePublish(path domain.StreamPath, publisher domain.PublisherID) error
	OnDonePublish(path domain.StreamPath, publisher domain.PublisherID)
}

type packetReader interface {
	ReadPacket() (av.Packet, error)
}

type Server struct {
	ingest Ingestor
	srv    *rtmp.Server
}

func NewServer(addr string, ingest Ingestor) *Server {
	s := &Server{ingest: ingest}
	s.srv = &rtmp.Server{
		Addr:          addr,
		HandlePublish: s.handlePublish,
	}
	return s
}

// ListenAndServe blocks until the listener fails. joy4 offers no way to stop
// the accept loop, so the process exit ends it.
func (s *Server) ListenAndServe() error {
	log.Info().Str("module", "adapters.rtmp").Str("addr", s.srv.Addr).Msg("RTMP ingest listening")
	return s.srv.ListenAndServe()
}

// joy4 closes conn once the handler returns; returning early rejects the publisher.
func (s *Server) handlePublish(conn *rtmp.Conn) {
	raw := ""
	if conn.URL != nil {
		raw = conn.URL.Path
	}
	s.servePublish(raw, conn)
}

func (s *Server) servePublish(raw string, r packetReader) {
	path, err := domain.NewStreamPath(raw)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.rtmp").Str("raw_path", raw).Msg("publish with bad path rejected")
		return
	}
	pub := domain.NewPublisherID()
	logger := log.With().Str("module", "adapters.rtmp").Str("path", string(path)).Str("publisher", string(pub)).Logger()

	if err := s.ingest.OnPrePublish(path, pub); err != nil {
		logger.Info().Err(err).Msg("publish rejected")
		return
	}
	defer s.ingest.OnDonePublish(path, pub)

	packets, err := drain(r)
	if err != nil {
		logger.Warn().Err(err).Int("packets", packets).Msg("publisher connection lost")
		return
	}
	logger.Info().Int("packets", packets).Msg("publisher finished")
}

// drain reads until the publisher goes away. A clean EOF is not an error.
func drain(r packetReader) (int, error) {
	n := 0
	for {
		if _, err := r.ReadPacket(); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}
