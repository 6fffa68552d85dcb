package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ravskel/conveyor/internal/events"
)

// Output рендерит ответы API в терминал: таблицы run'ов и задач
// по умолчанию, сырой JSON при --json. Данные идут в stdout,
// сообщения о ходе выполнения — в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output. jsonMode переключает весь вывод данных на JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Заголовки доменных таблиц.
var (
	runHeaders  = []string{"RUN_ID", "PIPELINE", "STATUS", "ERROR", "CREATED"}
	taskHeaders = []string{"TASK_ID", "STATUS", "ATTEMPT", "DATASET", "ERROR"}
)

// Run выводит run одной строкой таблицы.
func (o *Output) Run(run RunResponse) {
	if o.jsonMode {
		o.JSON(run)
		return
	}
	o.table(runHeaders, [][]string{runRow(run)})
}

// Snapshot выводит run и record'ы его задач.
func (o *Output) Snapshot(snap *SnapshotResponse) {
	if o.jsonMode {
		o.JSON(snap)
		return
	}
	o.table(runHeaders, [][]string{runRow(snap.Run)})
	fmt.Fprintln(o.w)
	o.Tasks(snap.Records)
}

// Tasks выводит таблицу record'ов задач.
func (o *Output) Tasks(records []TaskRecordResponse) {
	if o.jsonMode {
		o.JSON(records)
		return
	}
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{
			rec.TaskID,
			rec.Status,
			strconv.Itoa(rec.Attempt),
			orDash(rec.DatasetRef),
			orDash(rec.Error),
		}
	}
	o.table(taskHeaders, rows)
}

// Submitted выводит ID созданного или возобновлённого run'а.
func (o *Output) Submitted(resp *SubmitRunResponse) {
	if o.jsonMode {
		o.JSON(resp)
		return
	}
	fmt.Fprintln(o.w, resp.RunID)
}

// Event выводит событие жизненного цикла одной строкой:
// время, вид, run, задача, переход статуса.
func (o *Output) Event(ev events.Event) {
	if o.jsonMode {
		o.JSON(ev)
		return
	}

	line := fmt.Sprintf("%s  %-12s  run=%s", ev.Timestamp.Format("15:04:05.000"), ev.Kind, ev.RunID)
	if ev.TaskID != "" {
		line += "  task=" + ev.TaskID
	}
	if ev.OldStatus != "" || ev.NewStatus != "" {
		line += fmt.Sprintf("  %s -> %s", ev.OldStatus, ev.NewStatus)
	}
	if ev.Error != "" {
		line += "  error=" + ev.Error
	}
	if ev.Detail != "" {
		line += "  detail=" + ev.Detail
	}
	fmt.Fprintln(o.w, line)
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func runRow(run RunResponse) []string {
	return []string{run.ID, run.Pipeline, run.Status, orDash(run.Error), run.CreatedAt}
}

// orDash подставляет прочерк вместо пустых колонок.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// table печатает выровненную таблицу с заголовком.
func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
