package pipeline

import (
	"os"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/command"
)

// Session is the execution context of one profile: the working directory and
// environment overlay passed to every command. It is a value scoped to the
// profile's pipeline; nothing process-wide changes, so there is nothing to
// restore when the profile finishes or fails.
type Session struct {
	Dir string
	Env map[string]string
}

// enter validates dir and returns a session rooted there
func enter(profileID, dir string) (Session, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Session{}, &deployerr.ConfigError{Profile: profileID, Reason: "profile path " + dir, Err: err}
	}
	if !info.IsDir() {
		return Session{}, deployerr.Configf(profileID, "profile path %s is not a directory", dir)
	}
	return Session{Dir: dir}, nil
}

// withEnv returns a copy of s with overlay merged over its environment
func (s Session) withEnv(overlay map[string]string) Session {
	env := make(map[string]string, len(s.Env)+len(overlay))
	for k, v := range s.Env {
		env[k] = v
	}
	for k, v := range overlay {
		env[k] = v
	}
	s.Env = env
	return s
}

// options returns executor options bound to the session
func (s Session) options(log bool) command.Options {
	return command.Options{Dir: s.Dir, Env: s.Env, Log: log}
}
