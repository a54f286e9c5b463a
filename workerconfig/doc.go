// Package workerconfig loads the worker's startup configuration: the
// inherited channel file descriptors, the control channel's buffer size,
// and the logging level. It is YAML-encoded, following the teacher's
// choice of gopkg.in/yaml.v3 for structured config over flags alone.
package workerconfig
