package main

import (
	"log"
	"os"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/grade"
	"github.com/trezcool/darasa/core/grading"
	auditsvc "github.com/trezcool/darasa/services/audit"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	appLog := logsvc.NewRollbarLogger(logger, conf)
	appLog.Enable(!conf.Debug && !conf.TestMode)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	auditLog := auditsvc.NewConsoleService(appLog)

	// start CLI
	cli := commandLine{
		db:         db,
		conf:       conf,
		gradingSvc: grading.NewService(sqlxrepos.NewGradingRepository(db), appLog, auditLog),
		attSvc:     attendance.NewService(sqlxrepos.NewAttendanceRepository(db), appLog, auditLog),
		gradeSvc:   grade.NewService(sqlxrepos.NewGradeRepository(db), appLog, auditLog),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
