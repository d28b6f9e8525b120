package ssh

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client is a connected SSH client with an SFTP session.
type Client struct {
	config *Config
	ssh    *ssh.Client
	sftp   *sftp.Client
}

// Dial validates config, connects and opens an SFTP session.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig, err := config.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		done <- dialResult{client, err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		// Close a connection that completes after we gave up.
		go func() {
			if r := <-done; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case r := <-done:
		if r.err != nil {
			return nil, &TransportError{Op: "connect", Err: r.err, IsTemporary: true}
		}
		sshClient = r.client
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	log.Debug().Str("address", address).Msg("SSH connection established")
	return &Client{config: config, ssh: sshClient, sftp: sftpClient}, nil
}

// Close ends the SFTP session and the connection.
func (c *Client) Close() error {
	sftpErr := c.sftp.Close()
	if err := c.ssh.Close(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	if sftpErr != nil {
		return &TransportError{Op: "disconnect", Err: sftpErr}
	}
	return nil
}

// Download copies the remote file at remotePath into dst.
func (c *Client) Download(ctx context.Context, remotePath string, dst io.Writer) (int64, error) {
	startTime := time.Now()

	remoteFile, err := c.sftp.Open(remotePath)
	if err != nil {
		return 0, &TransportError{
			Op:          "download",
			Err:         fmt.Errorf("failed to open remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, dst, remoteFile)
	if err != nil {
		return written, &TransportError{
			Op:          "download",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file downloaded")

	return written, nil
}

// copyWithContext copies src to dst, checking ctx between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
