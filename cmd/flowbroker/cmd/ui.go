package cmd

import (
	"fmt"

	"github.com/fatih/color"
)

const logo = "\n" +
	" _____ _                 ____            _             \n" +
	"|  ___| | _____      __ | __ ) _ __ ___  | | _____ _ __ \n" +
	"| |_  | |/ _ \\ \\ /\\ / / |  _ \\| '__/ _ \\ | |/ / _ \\ '__|\n" +
	"|  _| | | (_) \\ V  V /  | |_) | | | (_) ||   <  __/ |   \n" +
	"|_|   |_|\\___/ \\_/\\_/   |____/|_|  \\___/ |_|\\_\\___|_|   \n"

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func printErr(format string, args ...any) {
	fmt.Println(color.RedString(format, args...))
}

func printOK(format string, args ...any) {
	fmt.Println(color.GreenString(format, args...))
}

func printWarn(format string, args ...any) {
	fmt.Println(color.YellowString(format, args...))
}
