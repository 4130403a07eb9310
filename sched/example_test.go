package sched_test

import (
	"context"
	"fmt"

	"github.com/joeycumines/go-kernsched/sched"
)

func Example() {
	s, err := sched.New(sched.WithTimeSlice(0))
	if err != nil {
		panic(err)
	}

	err = s.Run(context.Background(), func() {
		done := s.NewSemaphore(0)
		// higher priority than main, so it runs immediately
		_, _ = s.Create(`worker`, sched.PriDefault+1, func(arg any) {
			fmt.Println(`worker:`, arg)
			done.Up()
		}, `hello`)
		done.Down()
		fmt.Println(`main: worker done`)
	})
	fmt.Println(`halted:`, err)

	//output:
	//worker: hello
	//main: worker done
	//halted: <nil>
}

func ExampleScheduler_Sleep() {
	s, err := sched.New()
	if err != nil {
		panic(err)
	}
	_ = s.Run(context.Background(), func() {
		_, _ = s.Create(`sleeper`, sched.PriMax, func(any) {
			s.Sleep(3)
			fmt.Println(`woke at tick`, s.Ticks())
		}, nil)
		// no tick source is configured, so ticks must be raised explicitly
		for i := 0; i < 5; i++ {
			s.Controller().Raise(sched.TimerVector)
			s.Controller().Poll()
		}
	})

	//output:
	//woke at tick 3
}
