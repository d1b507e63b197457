package lrthrome

import (
	syslog "github.com/RackSec/srslog"
	"github.com/sirupsen/logrus"
)

// SyslogOptions configures forwarding of Log output to a syslog
// daemon, local or remote. Network is "" for the local syslog socket,
// or "udp"/"tcp" for a remote one paired with Address.
type SyslogOptions struct {
	Network  string
	Address  string
	Tag      string
	Priority string // emergency, alert, critical, error, warning, notice, info, debug
}

// syslogPriority maps the config's named priority to an srslog
// priority, mirroring the priority switch in routedns's
// cmd/routedns/main.go instantiateGroup "syslog" case.
func syslogPriority(name string) (syslog.Priority, error) {
	switch name {
	case "emergency", "":
		return syslog.LOG_EMERG, nil
	case "alert":
		return syslog.LOG_ALERT, nil
	case "critical":
		return syslog.LOG_CRIT, nil
	case "error":
		return syslog.LOG_ERR, nil
	case "warning":
		return syslog.LOG_WARNING, nil
	case "notice":
		return syslog.LOG_NOTICE, nil
	case "info":
		return syslog.LOG_INFO, nil
	case "debug":
		return syslog.LOG_DEBUG, nil
	default:
		return 0, ErrMalformed("unsupported syslog priority " + name)
	}
}

// EnableSyslog points Log's output at a syslog daemon in addition to
// its existing output, used when the config's [log] section sets
// syslog-address.
func EnableSyslog(opt SyslogOptions) error {
	priority, err := syslogPriority(opt.Priority)
	if err != nil {
		return err
	}
	w, err := syslog.Dial(opt.Network, opt.Address, priority, opt.Tag)
	if err != nil {
		return Wrap(KindIO, err, "failed to dial syslog")
	}
	Log.AddHook(&syslogHook{w: w})
	return nil
}

// syslogHook is a logrus.Hook that writes every log entry's message to
// the dialed syslog connection, at the matching syslog priority.
type syslogHook struct {
	w *syslog.Writer
}

func (h *syslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *syslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return h.w.Crit(line)
	case logrus.ErrorLevel:
		return h.w.Err(line)
	case logrus.WarnLevel:
		return h.w.Warning(line)
	case logrus.InfoLevel:
		return h.w.Info(line)
	default:
		return h.w.Debug(line)
	}
}
